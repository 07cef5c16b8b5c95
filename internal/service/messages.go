package service

import (
	"fmt"
	"strings"
	"time"

	"CareFollow/internal/model"
)

var reminderMessages = map[model.ReminderType]string{
	model.ReminderTypeDay3: "👋 สวัสดีค่ะ\n\n" +
		"📅 วันนี้เป็นวันที่ 3 หลังจำหน่ายแล้วค่ะ\n\n" +
		"🩹 แผลหายดีไหมคะ?\n" +
		"🌡️ มีไข้หรืออาการผิดปกติไหม?\n\n" +
		"💬 กรุณารายงานอาการด้วยนะคะ\n" +
		"พิมพ์: 'รายงานอาการ' เพื่อเริ่มบันทึก",
	model.ReminderTypeDay7: "📅 เตือนความจำค่ะ\n\n" +
		"วันนี้เป็นสัปดาห์แรกหลังจำหน่ายแล้ว\n" +
		"ถึงเวลานัดตรวจครั้งแรกค่ะ 🏥\n\n" +
		"📋 สิ่งที่ควรเตรียม:\n" +
		"• บัตรประชาชน\n" +
		"• บัตรประกันสุขภาพ\n" +
		"• ยาที่กำลังทาน\n\n" +
		"💡 ต้องการนัดหมายใหม่ไหมคะ?\n" +
		"พิมพ์: 'นัดหมาย' เพื่อจองเวลา",
	model.ReminderTypeDay14: "📅 สัปดาห์ที่ 2 หลังจำหน่าย\n\n" +
		"🎯 เป้าหมายในช่วงนี้:\n" +
		"• แผลควรหายดีแล้ว 80-90%\n" +
		"• สามารถเคลื่อนไหวได้ปกติ\n" +
		"• ลดการใช้ยาแก้ปวด\n\n" +
		"❓ ความรู้สึกเป็นอย่างไรบ้างคะ?\n\n" +
		"📝 พิมพ์: 'รายงานอาการ' เพื่ออัปเดต\n" +
		"📚 พิมพ์: 'ความรู้' เพื่อดูคำแนะนำ",
	model.ReminderTypeDay30: "🎉 ครบ 1 เดือนแล้วค่ะ!\n\n" +
		"👏 ยินดีด้วยที่ผ่านระยะพักฟื้นมาได้\n\n" +
		"📊 ขอติดตามผลหน่อยนะคะ:\n" +
		"• แผลหายสนิทแล้วหรือยัง?\n" +
		"• กลับมาใช้ชีวิตได้ปกติไหม?\n" +
		"• มีอาการผิดปกติหรือไม่?\n\n" +
		"💬 กรุณาบอกเราหน่อยนะคะ\n\n" +
		"🙏 ขอบคุณที่ให้เราดูแลค่ะ",
}

const fallbackReminderMessage = "🔔 เตือนความจำ: กรุณาติดตามสุขภาพของคุณ"

// ReminderMessage 提醒类型对应的推送文案
func ReminderMessage(t model.ReminderType) string {
	if msg, ok := reminderMessages[t]; ok {
		return msg
	}
	return fallbackReminderMessage
}

// NoResponseAlert 发给护士站的未回复告警，一个患者一条
func NoResponseAlert(patientID string, types []model.ReminderType, threshold time.Duration) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return fmt.Sprintf("📢 แจ้งเตือนไม่มีการตอบกลับ\n\n"+
		"👤 ผู้ป่วย: %s\n"+
		"📋 Reminders: %s\n"+
		"⏰ เกิน %d ชั่วโมงแล้ว\n\n"+
		"กรุณาติดตามผู้ป่วยค่ะ",
		patientID, strings.Join(names, ", "), int(threshold.Hours()))
}

// ConcernAlert 回复中出现关注关键词时发给护士站
func ConcernAlert(patientID string, t model.ReminderType, response string) string {
	return fmt.Sprintf("⚠️ แจ้งเตือนอาการน่ากังวล\n\n"+
		"👤 ผู้ป่วย: %s\n"+
		"📋 Reminder: %s\n"+
		"💬 Response: %s\n\n"+
		"กรุณาติดตามด่วนค่ะ",
		patientID, t, response)
}

// ContainsConcern 回复是否包含任一关注关键词（不区分大小写）
func ContainsConcern(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
