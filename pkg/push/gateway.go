package push

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"CareFollow/pkg/errors"
)

// Outcome 单次投递的结果分类
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeValidation Outcome = "validation"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeTransport  Outcome = "transport"
	OutcomeRejected   Outcome = "rejected"
)

// Transport 具体的推送通道（LINE、短信、mock）
type Transport interface {
	Name() string
	Push(ctx context.Context, recipient, message string) error
}

// Observer 接收每一次投递结果（审计表、指标）
type Observer interface {
	Observe(ctx context.Context, res Result)
}

// ObserverFunc 函数适配 Observer
type ObserverFunc func(ctx context.Context, res Result)

func (f ObserverFunc) Observe(ctx context.Context, res Result) { f(ctx, res) }

// Config 网关配置
type Config struct {
	// Credential 通道凭据，为空时所有投递都以 CREDENTIALS_MISSING 失败
	Credential string
	// DefaultRecipient 未指定接收方时使用（护士站群组）
	DefaultRecipient   string
	Timeout            time.Duration
	MinRecipientLength int
}

// Result 投递结果
type Result struct {
	Recipient   string
	Provider    string
	Outcome     Outcome
	Err         error
	StatusCode  int
	Duration    time.Duration
	AttemptedAt time.Time
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// ReasonCode 失败原因错误码，成功时为空
func (r Result) ReasonCode() string {
	if r.Err == nil {
		return ""
	}
	return errors.Code(r.Err)
}

// Gateway 推送网关：校验输入后调用一次通道，不做重试
type Gateway struct {
	cfg       Config
	transport Transport
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
}

func NewGateway(cfg Config, transport Transport, logger *zap.Logger, observers ...Observer) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MinRecipientLength <= 0 {
		cfg.MinRecipientLength = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:       cfg,
		transport: transport,
		observers: observers,
		logger:    logger,
		now:       time.Now,
	}
}

// Send 投递一条消息，只返回是否成功
func (g *Gateway) Send(ctx context.Context, message, recipient string) bool {
	return g.Deliver(ctx, message, recipient).OK()
}

// Deliver 投递一条消息并返回分类后的结果
func (g *Gateway) Deliver(ctx context.Context, message, recipient string) Result {
	start := g.now()
	res := Result{
		Provider:    g.transport.Name(),
		AttemptedAt: start,
	}

	to, err := g.validate(message, recipient)
	res.Recipient = to
	if err != nil {
		res.Outcome = OutcomeValidation
		res.Err = err
		g.finish(ctx, res)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	err = g.transport.Push(callCtx, to, message)
	cancel()

	res.Duration = g.now().Sub(start)
	if err != nil {
		res.Outcome, res.Err = classify(err)
		var de *DeliveryError
		if stderrors.As(err, &de) {
			res.StatusCode = de.StatusCode
		}
	} else {
		res.Outcome = OutcomeSuccess
	}

	g.finish(ctx, res)
	return res
}

// validate 按固定顺序校验：消息、凭据、接收方存在、接收方格式
func (g *Gateway) validate(message, recipient string) (string, error) {
	to := strings.TrimSpace(recipient)
	if to == "" {
		to = strings.TrimSpace(g.cfg.DefaultRecipient)
	}

	if strings.TrimSpace(message) == "" {
		return to, errors.MessageEmpty
	}
	if strings.TrimSpace(g.cfg.Credential) == "" {
		return to, errors.CredentialsMissing
	}
	if to == "" {
		return to, errors.RecipientMissing
	}
	if len(to) < g.cfg.MinRecipientLength {
		return to, errors.RecipientMalformed
	}
	return to, nil
}

func (g *Gateway) finish(ctx context.Context, res Result) {
	if res.OK() {
		g.logger.Debug("Push delivered",
			zap.String("provider", res.Provider),
			zap.String("recipient", res.Recipient),
			zap.Duration("duration", res.Duration),
		)
	} else {
		g.logger.Warn("Push delivery failed",
			zap.String("provider", res.Provider),
			zap.String("recipient", res.Recipient),
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.ReasonCode()),
			zap.Int("status_code", res.StatusCode),
			zap.Error(res.Err),
		)
	}

	for _, o := range g.observers {
		o.Observe(ctx, res)
	}
}

// DeliveryError 通道返回的投递失败
type DeliveryError struct {
	Kind       errors.Definition
	StatusCode int
	Detail     string
	Err        error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Code)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Timeout 通道调用超时
func Timeout(err error) error {
	return &DeliveryError{Kind: errors.DeliveryTimeout, Err: err}
}

// Unreachable 连接失败等传输层错误
func Unreachable(err error) error {
	return &DeliveryError{Kind: errors.DeliveryTransport, Err: err}
}

// Rejected 通道返回非成功状态
func Rejected(statusCode int, detail string) error {
	return &DeliveryError{Kind: errors.DeliveryRejected, StatusCode: statusCode, Detail: detail}
}

// classify 将通道错误归类；未标注的错误按超时或传输失败处理
func classify(err error) (Outcome, error) {
	switch {
	case errors.Is(err, errors.DeliveryRejected):
		return OutcomeRejected, err
	case errors.Is(err, errors.DeliveryTimeout):
		return OutcomeTimeout, err
	case errors.Is(err, errors.DeliveryTransport):
		return OutcomeTransport, err
	case isTimeout(err):
		return OutcomeTimeout, Timeout(err)
	default:
		return OutcomeTransport, Unreachable(err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
