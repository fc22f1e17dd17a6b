package testkit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// HTTPEventOptions shapes a synthetic API Gateway v2 or function URL request.
type HTTPEventOptions struct {
	Query    map[string][]string
	Headers  map[string]string
	Cookies  []string
	Body     []byte
	IsBase64 bool
	SourceIP string
}

type httpParts struct {
	method   string
	rawPath  string
	rawQuery string
	query    map[string]string
	headers  map[string]string
	body     string
}

func buildHTTP(method, path string, opts HTTPEventOptions) httpParts {
	rawPath, rawQuery := splitPathAndQuery(path, opts.Query)

	headers := make(map[string]string, len(opts.Headers))
	for key, value := range opts.Headers {
		headers[strings.ToLower(key)] = value
	}

	var query map[string]string
	for key, values := range opts.Query {
		if len(values) == 0 {
			continue
		}
		if query == nil {
			query = map[string]string{}
		}
		query[key] = values[0]
	}

	body := string(opts.Body)
	if opts.IsBase64 {
		body = base64.StdEncoding.EncodeToString(opts.Body)
	}

	return httpParts{
		method:   strings.ToUpper(strings.TrimSpace(method)),
		rawPath:  rawPath,
		rawQuery: rawQuery,
		query:    query,
		headers:  headers,
		body:     body,
	}
}

func APIGatewayV2Request(method, path string, opts HTTPEventOptions) events.APIGatewayV2HTTPRequest {
	p := buildHTTP(method, path, opts)
	return events.APIGatewayV2HTTPRequest{
		Version:               "2.0",
		RouteKey:              "$default",
		RawPath:               p.rawPath,
		RawQueryString:        p.rawQuery,
		Cookies:               append([]string(nil), opts.Cookies...),
		Headers:               p.headers,
		QueryStringParameters: p.query,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   p.method,
				Path:     p.rawPath,
				SourceIP: opts.SourceIP,
			},
		},
		Body:            p.body,
		IsBase64Encoded: opts.IsBase64,
	}
}

func LambdaFunctionURLRequest(method, path string, opts HTTPEventOptions) events.LambdaFunctionURLRequest {
	p := buildHTTP(method, path, opts)
	return events.LambdaFunctionURLRequest{
		Version:               "2.0",
		RawPath:               p.rawPath,
		RawQueryString:        p.rawQuery,
		Cookies:               append([]string(nil), opts.Cookies...),
		Headers:               p.headers,
		QueryStringParameters: p.query,
		RequestContext: events.LambdaFunctionURLRequestContext{
			HTTP: events.LambdaFunctionURLRequestContextHTTPDescription{
				Method:   p.method,
				Path:     p.rawPath,
				SourceIP: opts.SourceIP,
			},
		},
		Body:            p.body,
		IsBase64Encoded: opts.IsBase64,
	}
}

// SQSEvent wraps bodies as messages "msg-1", "msg-2" and so on from queueARN.
func SQSEvent(queueARN string, bodies ...string) events.SQSEvent {
	out := events.SQSEvent{Records: make([]events.SQSMessage, 0, len(bodies))}
	for i, body := range bodies {
		out.Records = append(out.Records, events.SQSMessage{
			MessageId:      fmt.Sprintf("msg-%d", i+1),
			Body:           body,
			EventSource:    "aws:sqs",
			EventSourceARN: queueARN,
			AWSRegion:      "us-east-1",
		})
	}
	return out
}

// ScheduledEvent is what an EventBridge rate or cron rule delivers.
func ScheduledEvent(ruleARN string, at time.Time) events.EventBridgeEvent {
	if at.IsZero() {
		at = time.Unix(0, 0).UTC()
	}
	return events.EventBridgeEvent{
		Version:    "0",
		ID:         "evt-1",
		DetailType: "Scheduled Event",
		Source:     "aws.events",
		AccountID:  "000000000000",
		Time:       at,
		Region:     "us-east-1",
		Resources:  []string{ruleARN},
		Detail:     json.RawMessage("{}"),
	}
}

// Payload marshals an event the way the Lambda runtime hands it to HandleLambda.
func Payload(event any) json.RawMessage {
	b, err := json.Marshal(event)
	if err != nil {
		panic(fmt.Sprintf("testkit: marshal event: %v", err))
	}
	return b
}

func splitPathAndQuery(path string, query map[string][]string) (string, string) {
	rawPath, rawQuery, _ := strings.Cut(strings.TrimSpace(path), "?")
	if rawPath == "" {
		rawPath = "/"
	}
	if !strings.HasPrefix(rawPath, "/") {
		rawPath = "/" + rawPath
	}
	if len(query) == 0 {
		return rawPath, rawQuery
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, key := range keys {
		for _, v := range query[key] {
			values.Add(key, v)
		}
	}
	return rawPath, values.Encode()
}
