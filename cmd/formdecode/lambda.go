package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/epithet-ssh/formdecode/pkg/config"
	"github.com/epithet-ssh/formdecode/pkg/formserver"
	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
)

// LambdaCLI runs the decoding service behind API Gateway (HTTP API, payload v2).
type LambdaCLI struct {
	BodyLimit      int    `help:"Maximum request body size in bytes" default:"8192" env:"BODY_LIMIT"`
	LowercaseHex   bool   `help:"Accept lowercase hex digits in %XY escapes" env:"LOWERCASE_HEX"`
	RulesParameter string `help:"SSM Parameter Store parameter holding the rules (optional)" env:"RULES_PARAMETER_NAME"`
	ArchiveBucket  string `help:"S3 bucket for decode event archival (optional)" env:"ARCHIVE_BUCKET"`
	ArchivePrefix  string `help:"S3 key prefix for decode event archival" env:"ARCHIVE_PREFIX" default:"decodes"`
}

// SSMGetParameterAPI is the subset of *ssm.Client used to load rules.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func (a *LambdaCLI) Run(logger *slog.Logger) error {
	logger.Info("starting Lambda handler")

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	cfg := formserver.Config{
		BodyLimit:    a.BodyLimit,
		DecodeLogger: formserver.NewSlogDecodeLogger(logger),
	}
	if a.LowercaseHex {
		cfg.DecodeOptions = append(cfg.DecodeOptions, urlencoded.LowercaseHex())
	}

	if a.RulesParameter != "" {
		rules, err := loadRulesParameter(context.Background(), ssm.NewFromConfig(awsCfg), a.RulesParameter)
		if err != nil {
			return err
		}
		cfg.Rules = rules
		logger.Info("loaded rules from SSM Parameter Store",
			"parameter_name", a.RulesParameter,
			"required", len(rules.Required),
			"allowed", len(rules.Allowed))
	}

	// Lambda freezes the process between invocations, so buffered events
	// may wait until the next request before they reach S3.
	if a.ArchiveBucket != "" {
		archiver := newArchiver(s3.NewFromConfig(awsCfg), a.ArchiveBucket, a.ArchivePrefix, logger)
		cfg.DecodeLogger = formserver.NewMultiDecodeLogger(cfg.DecodeLogger, archiver)
	}

	handler := formserver.New(logger, cfg)

	logger.Info("Lambda initialized successfully")

	lambda.Start(func(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handleLambdaRequest(ctx, request, handler, logger)
	})

	return nil
}

// loadRulesParameter reads a decrypted SSM parameter and parses it as YAML
// (or JSON) rules.
func loadRulesParameter(ctx context.Context, client SSMGetParameterAPI, name string) (*formserver.Rules, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve SSM parameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("SSM parameter %s has no value", name)
	}

	val, err := config.LoadValueFromReader(strings.NewReader(*out.Parameter.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	rules, err := config.Decode[formserver.Rules](val)
	if err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules in %s: %w", name, err)
	}
	return rules, nil
}

func handleLambdaRequest(ctx context.Context, request events.APIGatewayV2HTTPRequest, handler http.Handler, logger *slog.Logger) (events.APIGatewayV2HTTPResponse, error) {
	target := request.RawPath
	if target == "" {
		target = "/"
	}
	if request.RawQueryString != "" {
		target += "?" + request.RawQueryString
	}

	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			logger.Warn("invalid base64 body", "error", err)
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusBadRequest,
				Body:       "invalid base64 body",
			}, nil
		}
		body = string(decoded)
	}

	req, err := http.NewRequestWithContext(ctx, request.RequestContext.HTTP.Method, target, strings.NewReader(body))
	if err != nil {
		logger.Error("failed to create request", "error", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       "Internal server error",
		}, nil
	}
	req.RemoteAddr = request.RequestContext.HTTP.SourceIP

	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}

	rw := &lambdaResponseWriter{
		headers: make(http.Header),
	}
	handler.ServeHTTP(rw, req)

	headers := make(map[string]string)
	for k, v := range rw.headers {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: rw.status(),
		Headers:    headers,
		Body:       string(rw.body),
	}, nil
}

// lambdaResponseWriter implements http.ResponseWriter for Lambda.
type lambdaResponseWriter struct {
	headers    http.Header
	body       []byte
	statusCode int
}

func (w *lambdaResponseWriter) Header() http.Header {
	return w.headers
}

func (w *lambdaResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *lambdaResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

func (w *lambdaResponseWriter) status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}
