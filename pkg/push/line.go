package push

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	herrors "github.com/cloudwego/hertz/pkg/common/errors"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"CareFollow/pkg/errors"
)

const maxDetailLength = 256

// LineTransport 通过 LINE Messaging API push 接口投递文本消息
type LineTransport struct {
	endpoint string
	token    string
	client   *client.Client
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

func NewLineTransport(endpoint, token string, timeout time.Duration) (*LineTransport, error) {
	c, err := client.NewClient(
		client.WithDialer(standard.NewDialer()),
		client.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create line push client: %w", err)
	}

	return &LineTransport{
		endpoint: endpoint,
		token:    token,
		client:   c,
	}, nil
}

func (t *LineTransport) Name() string {
	return "line"
}

func (t *LineTransport) Push(ctx context.Context, recipient, message string) error {
	body, err := json.Marshal(linePushRequest{
		To:       recipient,
		Messages: []lineMessage{{Type: "text", Text: message}},
	})
	if err != nil {
		return Unreachable(err)
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetRequestURI(t.endpoint)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = t.client.DoDeadline(ctx, req, resp, deadline)
	} else {
		err = t.client.Do(ctx, req, resp)
	}
	if err != nil {
		if errors.Is(err, herrors.ErrTimeout) || isTimeout(err) {
			return Timeout(err)
		}
		return Unreachable(err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return Rejected(status, truncateDetail(string(resp.Body())))
	}
	return nil
}

// truncateDetail 截断响应体，丢弃被截断的半个多字节字符
func truncateDetail(detail string) string {
	if len(detail) <= maxDetailLength {
		return detail
	}
	return strings.ToValidUTF8(detail[:maxDetailLength], "")
}
