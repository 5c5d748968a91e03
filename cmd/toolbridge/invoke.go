package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/tools/openapi"
)

// =============================================================================
// 🔨 invoke 命令
// =============================================================================

// invokeOptions 单次调用参数
type invokeOptions struct {
	Spec        string
	Operation   string
	Params      string
	Credentials string
	BaseURL     string
	Timeout     time.Duration
}

func runInvoke(args []string) {
	fs := flag.NewFlagSet("invoke", flag.ExitOnError)
	var opts invokeOptions
	fs.StringVar(&opts.Spec, "spec", "", "OpenAPI document path or URL")
	fs.StringVar(&opts.Operation, "operation", "", "Tool name or operationId")
	fs.StringVar(&opts.Params, "params", "", "Parameters as a JSON object")
	fs.StringVar(&opts.Credentials, "credentials", "", "Credential record as a JSON object")
	fs.StringVar(&opts.BaseURL, "base-url", "", "Override the server URL")
	fs.DurationVar(&opts.Timeout, "timeout", config.DefaultAPIToolConfig().ReadTimeout, "Request timeout")
	_ = fs.Parse(args)

	logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := invoke(ctx, opts, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Invoke failed: %v\n", err)
		os.Exit(1)
	}
}

// invoke 加载文档、选出操作并调用，结果文本写入 out
func invoke(ctx context.Context, opts invokeOptions, out io.Writer, logger *zap.Logger) error {
	if opts.Spec == "" || opts.Operation == "" {
		return fmt.Errorf("--spec and --operation are required")
	}

	params, err := decodeObject(opts.Params)
	if err != nil {
		return fmt.Errorf("invalid --params: %w", err)
	}
	creds, err := decodeObject(opts.Credentials)
	if err != nil {
		return fmt.Errorf("invalid --credentials: %w", err)
	}
	if len(creds) == 0 {
		creds = map[string]any{apitool.CredentialAuthType: apitool.AuthTypeNone}
	}

	defaults := config.DefaultAPIToolConfig()
	client, err := tlsutil.NewHTTPClient(tlsutil.ClientOptions{
		ConnectTimeout: defaults.ConnectTimeout,
		ReadTimeout:    opts.Timeout,
	})
	if err != nil {
		return err
	}

	gen := openapi.NewGenerator(openapi.GeneratorConfig{Timeout: opts.Timeout, HTTPClient: client}, logger)
	doc, err := gen.LoadSpec(ctx, opts.Spec)
	if err != nil {
		return err
	}
	bundles, err := gen.GenerateBundles(doc, openapi.GenerateOptions{BaseURL: opts.BaseURL})
	if err != nil {
		return err
	}
	bundle, ok := openapi.FindBundle(bundles, opts.Operation)
	if !ok {
		return fmt.Errorf("operation %q not found in %s", opts.Operation, opts.Spec)
	}

	tool := apitool.New(bundle, apitool.CredentialRecord(creds),
		apitool.WithHTTPClient(client),
		apitool.WithLogger(logger),
	)
	text, err := tool.Invoke(ctx, apitool.Parameters(params))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

// decodeObject 解析 JSON 对象，保留嵌套对象的键顺序。空串得到空对象
func decodeObject(raw string) (map[string]any, error) {
	result := map[string]any{}
	if raw == "" {
		return result, nil
	}
	var obj apitool.Object
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	for _, k := range obj.Keys() {
		result[k], _ = obj.Get(k)
	}
	return result, nil
}
