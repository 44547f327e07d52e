package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/payment-sms-relay/internal/config"
)

// LoadAWSConfig builds the SDK config from the relay settings. Static
// credentials are used only when both key parts are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// NewSQSClient returns an SQS client, pointed at AWS_ENDPOINT_OVERRIDE
// (LocalStack) when set.
func NewSQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewSESClient returns an SES v2 client honoring AWS_ENDPOINT_OVERRIDE.
func NewSESClient(awsCfg aws.Config, cfg *appconfig.Config) *sesv2.Client {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
