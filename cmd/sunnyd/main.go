// Command sunnyd runs the settlement engine over JSON lines on stdin.
//
//	sunnyd            read {"operation","args","token"|"as"} per line, print results
//	sunnyd token ...  mint a witness token: sunnyd token -sign owner:secret [-sign ...]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sunnyflow/auth"
	"sunnyflow/config"
	"sunnyflow/db"
	"sunnyflow/engine"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/telemetry"
)

// opVerification answers whether the owner signed, without touching state.
const opVerification = "verification"

type request struct {
	Operation string          `json:"operation"`
	Args      []any           `json:"args"`
	Token     string          `json:"token,omitempty"`
	As        []auth.Identity `json:"as,omitempty"`
}

type response struct {
	Operation string `json:"operation"`
	OK        bool   `json:"ok"`
	Value     any    `json:"value,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "sunnyd: %v\n", err)
		return 2
	}
	logger := cfg.Logger(stderr)

	if len(args) > 0 && args[0] == "token" {
		return runToken(cfg, args[1:], stdout, stderr)
	}

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Error("open backend", "store", cfg.Store, "error", err)
		return 1
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close backend", "error", err)
		}
	}()

	var sink events.Sink = events.LogSink{Logger: logger}
	if cfg.Outbox {
		outbox := events.NewPGOutbox(conn.Pool)
		if err := outbox.EnsureSchema(ctx); err != nil {
			logger.Error("prepare outbox", "error", err)
			return 1
		}
		sink = events.Fanout{sink, outbox}
	}

	inst, err := telemetry.New(nil, nil)
	if err != nil {
		logger.Error("init telemetry", "error", err)
		return 1
	}

	eng := engine.New(conn.Backend, auth.Identity(cfg.Owner)).
		WithSink(sink).
		WithLogger(logger).
		WithTelemetry(inst)

	var verifier *auth.TokenVerifier
	if cfg.TokenSecret != "" {
		verifier = auth.NewTokenVerifier(cfg.TokenSecret)
	}

	logger.Info("sunnyd ready", "store", cfg.Store, "owner", cfg.Owner, "outbox", cfg.Outbox)
	if err := serve(ctx, eng, verifier, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serve", "error", err)
		return 1
	}
	return 0
}

// serve handles one request per input line until EOF.
func serve(ctx context.Context, eng *engine.Engine, verifier *auth.TokenVerifier, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(bufio.NewReader(in))
	dec.UseNumber()
	enc := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}
		if err := enc.Encode(handle(ctx, eng, verifier, req)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func handle(ctx context.Context, eng *engine.Engine, verifier *auth.TokenVerifier, req request) response {
	witness, err := resolveWitness(verifier, req)
	if err != nil {
		return response{Operation: req.Operation, Kind: fault.ErrUnauthorized.Error(), Error: err.Error()}
	}
	if req.Operation == opVerification {
		return response{Operation: req.Operation, OK: eng.Verify(witness)}
	}

	res := eng.Invoke(ctx, witness, req.Operation, req.Args)
	resp := response{Operation: res.Operation, OK: res.OK, Value: res.Value}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		if res.IsRejected() {
			resp.Kind = fault.Kind(res.Err).Error()
		}
	}
	return resp
}

// resolveWitness prefers a token. Plain "as" signers are only honored when no
// token secret is configured.
func resolveWitness(verifier *auth.TokenVerifier, req request) (auth.Witness, error) {
	switch {
	case req.Token != "":
		if verifier == nil {
			return nil, errors.New("sunnyd: token given but SUNNY_TOKEN_SECRET is not set")
		}
		return verifier.Verify(req.Token)
	case verifier != nil && len(req.As) > 0:
		return nil, errors.New("sunnyd: signers must be proven with a token")
	default:
		return auth.NewSigners(req.As...), nil
	}
}

type signFlag []auth.Credential

func (s *signFlag) String() string {
	ids := make([]string, 0, len(*s))
	for _, c := range *s {
		ids = append(ids, string(c.Identity))
	}
	return strings.Join(ids, ",")
}

func (s *signFlag) Set(v string) error {
	id, secret, ok := strings.Cut(v, ":")
	if !ok || id == "" {
		return fmt.Errorf("want identity:secret, got %q", v)
	}
	*s = append(*s, auth.Credential{Identity: auth.Identity(id), Secret: secret})
	return nil
}

func runToken(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var signers signFlag
	fs.Var(&signers, "sign", "identity:secret of a co-signer (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.TokenSecret == "" {
		fmt.Fprintln(stderr, "sunnyd: SUNNY_TOKEN_SECRET is required to mint tokens")
		return 2
	}

	ring := auth.NewKeyring(cfg.TokenSecret)
	for _, c := range cfg.Credentials {
		if err := ring.Register(c.Identity, c.Secret); err != nil {
			fmt.Fprintf(stderr, "sunnyd: register %s: %v\n", c.Identity, err)
			return 1
		}
	}
	token, err := ring.Issue(signers...)
	if err != nil {
		fmt.Fprintf(stderr, "sunnyd: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
