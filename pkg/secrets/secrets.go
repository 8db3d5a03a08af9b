package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// Prefix marks an environment value that names an SSM parameter.
const Prefix = "ssm:"

// ssmAPI is satisfied by *ssm.Client.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads decrypted parameters from SSM Parameter Store.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewFromDefaultConfig uses the standard AWS credential chain.
func NewFromDefaultConfig(ctx context.Context) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return New(ssm.NewFromConfig(cfg))
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: parameter name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// References lists the environment keys whose value starts with Prefix.
func References() []string {
	var keys []string
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(v, Prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// ResolveEnv replaces every ssm: reference in the process environment with
// the parameter value. It stops at the first failure.
func ResolveEnv(ctx context.Context, g Getter) error {
	for _, key := range References() {
		name := strings.TrimPrefix(os.Getenv(key), Prefix)
		val, err := g.GetParameter(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		log.Debug().Str("key", key).Str("parameter", name).Msg("resolved secret from ssm")
	}
	return nil
}
