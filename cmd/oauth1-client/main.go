// oauth1-client walks through the out-of-band flow against an oauth1-server:
// it obtains a request token, prints the authorization link, reads the PIN
// from stdin, exchanges it for an access token and calls the whoami
// endpoint with it.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	oauth1 "github.com/giantswarm/oauth1-oob"
	"github.com/giantswarm/oauth1-oob/signature"
)

type options struct {
	serverURL      string
	consumerKey    string
	consumerSecret string
	method         string
	privateKeyFile string
	insecure       bool
	timeout        time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	signer := &signature.Client{
		ConsumerKey:    opts.consumerKey,
		ConsumerSecret: opts.consumerSecret,
		Method:         opts.method,
	}
	if opts.privateKeyFile != "" {
		pemData, err := os.ReadFile(opts.privateKeyFile)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}
		if signer.PrivateKey, err = signature.ParseRSAPrivateKey(pemData); err != nil {
			return fmt.Errorf("parsing private key: %w", err)
		}
	}

	httpClient := &http.Client{Timeout: opts.timeout}
	if opts.insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed dev certificates
		}
	}

	c := &flowClient{base: strings.TrimRight(opts.serverURL, "/"), signer: signer, http: httpClient}
	ctx := context.Background()

	requestToken, err := c.tokenRequest(ctx, oauth1.RequestTokenPath, "", "", map[string]string{
		signature.ParamCallback: signature.CallbackOOB,
	})
	if err != nil {
		return fmt.Errorf("obtaining request token: %w", err)
	}

	authURL := c.base + oauth1.AuthorizePath + "?" + url.Values{signature.ParamToken: {requestToken.Token}}.Encode()
	fmt.Fprintf(out, "Open this link in a browser and approve access:\n\n  %s\n\nEnter the code shown: ", authURL)

	pin, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading code: %w", err)
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return errors.New("no code entered")
	}

	accessToken, err := c.tokenRequest(ctx, oauth1.AccessTokenPath, requestToken.Token, requestToken.TokenSecret, map[string]string{
		signature.ParamVerifier: pin,
	})
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}
	fmt.Fprintf(out, "\nAccess token: %s\nToken secret: %s\n", accessToken.Token, accessToken.TokenSecret)

	body, err := c.do(ctx, http.MethodGet, oauth1.WhoAmIPath, accessToken.Token, accessToken.TokenSecret, nil)
	if err != nil {
		return fmt.Errorf("calling %s: %w", oauth1.WhoAmIPath, err)
	}
	fmt.Fprintf(out, "Server says: %s\n", strings.TrimSpace(string(body)))
	return nil
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("oauth1-client", pflag.ContinueOnError)
	fs.StringVar(&opts.serverURL, "server", "https://localhost:9090", "base URL of the oauth1-server")
	fs.StringVar(&opts.consumerKey, "key", os.Getenv("OAUTH1_CLIENT_KEY"), "client key (default $OAUTH1_CLIENT_KEY)")
	fs.StringVar(&opts.consumerSecret, "secret", os.Getenv("OAUTH1_CLIENT_SECRET"), "client secret (default $OAUTH1_CLIENT_SECRET)")
	fs.StringVar(&opts.method, "method", signature.MethodHMACSHA1, "signature method")
	fs.StringVar(&opts.privateKeyFile, "private-key", "", "PEM private key for RSA-SHA1")
	fs.BoolVarP(&opts.insecure, "insecure", "k", false, "skip TLS certificate verification")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.consumerKey == "" || opts.consumerSecret == "" {
		return nil, errors.New("--key and --secret are required")
	}
	if opts.method == signature.MethodRSASHA1 && opts.privateKeyFile == "" {
		return nil, fmt.Errorf("--private-key is required for %s", signature.MethodRSASHA1)
	}
	return opts, nil
}

type flowClient struct {
	base   string
	signer *signature.Client
	http   *http.Client
}

// tokenRequest performs a signed POST to a token endpoint and decodes the
// form-encoded credentials it returns.
func (c *flowClient) tokenRequest(ctx context.Context, path, token, tokenSecret string, extra map[string]string) (*oauth1.TokenResponse, error) {
	body, err := c.do(ctx, http.MethodPost, path, token, tokenSecret, extra)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	resp := &oauth1.TokenResponse{
		Token:             values.Get(oauth1.FieldToken),
		TokenSecret:       values.Get(oauth1.FieldTokenSecret),
		CallbackConfirmed: values.Get(oauth1.FieldCallbackConfirmed) == "true",
	}
	if resp.Token == "" || resp.TokenSecret == "" {
		return nil, errors.New("response is missing token credentials")
	}
	return resp, nil
}

func (c *flowClient) do(ctx context.Context, method, path, token, tokenSecret string, extra map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	if err := c.signer.Sign(req, token, tokenSecret, extra); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, problemError(resp.StatusCode, body)
	}
	return body, nil
}

func problemError(status int, body []byte) error {
	values, err := url.ParseQuery(string(body))
	if err != nil || values.Get(oauth1.FieldProblem) == "" {
		return fmt.Errorf("server returned %d", status)
	}
	if advice := values.Get(oauth1.FieldProblemAdvice); advice != "" {
		return fmt.Errorf("server returned %d: %s (%s)", status, values.Get(oauth1.FieldProblem), advice)
	}
	return fmt.Errorf("server returned %d: %s", status, values.Get(oauth1.FieldProblem))
}
