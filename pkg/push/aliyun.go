package push

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
)

// AliyunSMSTransport 通过阿里云短信 SendSms 投递，recipient 为手机号
type AliyunSMSTransport struct {
	client       *openapi.Client
	signName     string
	templateCode string
	timeout      time.Duration
}

// NewAliyunSMSTransport 凭据由 SDK 从 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 读取
func NewAliyunSMSTransport(signName, templateCode string, timeout time.Duration) (*AliyunSMSTransport, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunSMSTransport{
		client:       client,
		signName:     signName,
		templateCode: templateCode,
		timeout:      timeout,
	}, nil
}

func (t *AliyunSMSTransport) Name() string {
	return "aliyun"
}

func (t *AliyunSMSTransport) apiInfo() *openapi.Params {
	return &openapi.Params{
		Action:      tea.String("SendSms"),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

func (t *AliyunSMSTransport) Push(ctx context.Context, recipient, message string) error {
	param, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return Unreachable(err)
	}

	request := &openapi.OpenApiRequest{
		Query: openapiutil.Query(map[string]interface{}{
			"PhoneNumbers":  tea.String(recipient),
			"SignName":      tea.String(t.signName),
			"TemplateCode":  tea.String(t.templateCode),
			"TemplateParam": tea.String(string(param)),
		}),
	}

	ms := int(t.timeout / time.Millisecond)
	runtime := &util.RuntimeOptions{
		ConnectTimeout: tea.Int(ms),
		ReadTimeout:    tea.Int(ms),
		Autoretry:      tea.Bool(false),
	}

	// SDK 不接受 context，超时由 RuntimeOptions 兜底，这里只负责提前返回
	type callResult struct {
		resp map[string]interface{}
		err  error
	}
	done := make(chan callResult, 1)
	go func() {
		resp, err := t.client.CallApi(t.apiInfo(), request, runtime)
		done <- callResult{resp: resp, err: err}
	}()

	var res callResult
	select {
	case <-ctx.Done():
		return Timeout(ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		var sdkErr *tea.SDKError
		if stderrors.As(res.err, &sdkErr) && sdkErr.StatusCode != nil && *sdkErr.StatusCode >= 400 && *sdkErr.StatusCode < 500 {
			return Rejected(*sdkErr.StatusCode, tea.StringValue(sdkErr.Message))
		}
		if isTimeout(res.err) {
			return Timeout(res.err)
		}
		return Unreachable(res.err)
	}

	return checkSMSResponse(res.resp)
}

// checkSMSResponse 解析 SendSms 响应，HTTP 200 且 Code=OK 才算成功
func checkSMSResponse(resp map[string]interface{}) error {
	statusCode := 200
	if raw, ok := resp["statusCode"]; ok && raw != nil {
		switch v := raw.(type) {
		case int:
			statusCode = v
		case int32:
			statusCode = int(v)
		case int64:
			statusCode = int(v)
		case float64:
			statusCode = int(v)
		}
	}
	if statusCode != 200 {
		return Rejected(statusCode, fmt.Sprintf("%v", resp["body"]))
	}

	body, ok := resp["body"]
	if !ok || body == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Unreachable(err)
	}
	var parsed struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Unreachable(err)
	}
	if parsed.Code != "" && parsed.Code != "OK" {
		return Rejected(statusCode, parsed.Code+" - "+parsed.Message)
	}
	return nil
}
