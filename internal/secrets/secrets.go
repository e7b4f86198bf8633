// Package secrets resolves the session cookie secret from a literal value,
// an SSM SecureString parameter or a KMS-encrypted blob.
package secrets

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// SSMGetter and KMSDecrypter are the API subsets used, so tests can run
// without AWS credentials.
type SSMGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type KMSDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Source names where the secret lives. Exactly one field must be set.
type Source struct {
	Literal string
	// SSMParam is a SecureString parameter name
	SSMParam string
	// KMSCiphertext is base64 of a KMS Encrypt output
	KMSCiphertext string
}

func (s Source) count() int {
	n := 0
	for _, v := range []string{s.Literal, s.SSMParam, s.KMSCiphertext} {
		if v != "" {
			n++
		}
	}
	return n
}

// Validate checks that exactly one source is configured.
func (s Source) Validate() error {
	switch s.count() {
	case 1:
		return nil
	case 0:
		return xerrors.New("no cookie secret source configured")
	default:
		return xerrors.New("more than one cookie secret source configured")
	}
}

// NeedsAWS reports whether resolving s calls AWS.
func (s Source) NeedsAWS() bool { return s.SSMParam != "" || s.KMSCiphertext != "" }

// Kind is "literal", "ssm" or "kms", for logs.
func (s Source) Kind() string {
	switch {
	case s.SSMParam != "":
		return "ssm"
	case s.KMSCiphertext != "":
		return "kms"
	}
	return "literal"
}

type Clients struct {
	SSM SSMGetter
	KMS KMSDecrypter
}

// NewClients loads the default AWS config chain and builds both clients.
func NewClients(ctx context.Context) (Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return Clients{}, xerrors.Wrap(err, "load aws config")
	}
	return Clients{SSM: ssm.NewFromConfig(cfg), KMS: kms.NewFromConfig(cfg)}, nil
}

// Resolve returns the secret bytes described by src.
func Resolve(ctx context.Context, src Source, c Clients) ([]byte, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var secret []byte
	switch src.Kind() {
	case "literal":
		secret = []byte(src.Literal)
	case "ssm":
		if c.SSM == nil {
			return nil, xerrors.New("ssm client is not configured")
		}
		out, err := c.SSM.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(src.SSMParam),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, xerrors.Wrapf(err, "get SSM parameter %s", src.SSMParam)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return nil, xerrors.Newf("SSM parameter %s has no value", src.SSMParam)
		}
		secret = []byte(*out.Parameter.Value)
	case "kms":
		if c.KMS == nil {
			return nil, xerrors.New("kms client is not configured")
		}
		blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(src.KMSCiphertext))
		if err != nil {
			return nil, xerrors.Wrap(err, "decode kms ciphertext")
		}
		out, err := c.KMS.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
		if err != nil {
			return nil, xerrors.Wrap(err, "kms decrypt")
		}
		secret = out.Plaintext
	}

	if len(secret) == 0 {
		return nil, xerrors.Newf("cookie secret from %s is empty", src.Kind())
	}
	return secret, nil
}
