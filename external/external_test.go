package external_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcos/prediction-gateway/external"
)

// =============================================================================
// PostJSON
// =============================================================================

func TestPostJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predictions/reaxys", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"smiles":["CCO"]}`, string(body))
		w.Write([]byte(`[{"products":["CC"],"scores":[0.5]}]`))
	}))
	defer server.Close()

	client := external.NewClient(nil)
	body, err := client.PostJSON(context.Background(), external.JoinURL(server.URL+"/predictions/", "reaxys"), []byte(`{"smiles":["CCO"]}`), time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"products":["CC"],"scores":[0.5]}]`, string(body))
}

func TestPostJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := external.NewClient(nil).PostJSON(context.Background(), server.URL, []byte(`{}`), 50*time.Millisecond)
	var timeoutErr *external.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
}

func TestPostJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 1000), http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := external.NewClient(nil).PostJSON(context.Background(), server.URL, []byte(`{}`), time.Second)
	var statusErr *external.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "(truncated)")
}

func TestPostJSON_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	_, err := external.NewClient(nil).PostJSON(context.Background(), server.URL, []byte(`{}`), time.Second)
	var decodeErr *external.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestPostJSON_RequiresURL(t *testing.T) {
	_, err := external.NewClient(nil).PostJSON(context.Background(), "", nil, time.Second)
	assert.Error(t, err)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h:9510/predictions/reaxys", external.JoinURL("http://h:9510/predictions/", "reaxys"))
	assert.Equal(t, "http://h/qm_predictor", external.JoinURL("http://h", "/qm_predictor"))
	assert.Equal(t, "http://h", external.JoinURL("http://h/", ""))
}

// =============================================================================
// SigV4Transport
// =============================================================================

func TestSigV4Transport_SignsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"), auth)
		assert.Contains(t, auth, "/us-west-2/sagemaker/aws4_request")
		assert.NotEmpty(t, r.Header.Get("X-Amz-Date"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"smiles":"CCO"}`, string(body))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
	})
	transport := external.NewSigV4TransportWithCredentials(creds, "us-west-2", "sagemaker", nil)

	_, err := external.NewClient(transport).PostJSON(context.Background(), server.URL, []byte(`{"smiles":"CCO"}`), time.Second)
	require.NoError(t, err)
}

func TestSigV4Transport_CredentialFailure(t *testing.T) {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no credentials")
	})
	transport := external.NewSigV4TransportWithCredentials(creds, "", "", nil)

	_, err := external.NewClient(transport).PostJSON(context.Background(), "http://127.0.0.1:1", []byte(`{}`), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}
