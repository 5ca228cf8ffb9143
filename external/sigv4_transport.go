// SigV4 signing transport for prediction backends hosted behind AWS
// (SageMaker endpoints, IAM-authorized API Gateway).
//
// Provides an http.RoundTripper that signs every request with AWS SigV4 for a
// configurable service and region before handing it to the base transport.
package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const (
	defaultSigningRegion  = "us-east-1"
	defaultSigningService = "execute-api"
)

// SigV4Transport is an http.RoundTripper that signs requests with AWS SigV4.
type SigV4Transport struct {
	credentials aws.CredentialsProvider
	region      string
	service     string
	signer      *v4.Signer
	base        http.RoundTripper
}

// NewSigV4Transport creates a signing transport using the standard AWS
// credential chain. The base transport performs the actual HTTP call
// (nil uses http.DefaultTransport).
func NewSigV4Transport(ctx context.Context, region, service string, base http.RoundTripper) (*SigV4Transport, error) {
	if region == "" {
		region = defaultSigningRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Verify credentials are retrievable
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	return NewSigV4TransportWithCredentials(cfg.Credentials, region, service, base), nil
}

// NewSigV4TransportWithCredentials creates a signing transport with an
// explicit credentials provider.
func NewSigV4TransportWithCredentials(creds aws.CredentialsProvider, region, service string, base http.RoundTripper) *SigV4Transport {
	if region == "" {
		region = defaultSigningRegion
	}
	if service == "" {
		service = defaultSigningService
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &SigV4Transport{
		credentials: creds,
		region:      region,
		service:     service,
		signer:      v4.NewSigner(),
		base:        base,
	}
}

// RoundTrip implements http.RoundTripper. It signs the request before sending.
func (t *SigV4Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
	}

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := t.signer.SignHTTP(req.Context(), creds, req, payloadHash, t.service, t.region, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to sign %s request: %w", t.service, err)
	}

	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	return t.base.RoundTrip(req)
}
