package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/cmd/internal/secret"
	"splitescrow/config"
	"splitescrow/core"
	"splitescrow/rpc"
)

const defaultSecretEnv = "ESCROW_JWT_SECRET"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(os.Args[2:])
	case "addresses":
		err = runAddresses(os.Args[2:])
	case "call":
		err = runCall(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "escrowctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: escrowctl <command> [flags]

commands:
  token      mint a bearer token naming an account as caller
  addresses  print the module addresses a deployer creates
  call       send a JSON-RPC request to escrowd`)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "caller address embedded as the token subject")
	issuer := fs.String("issuer", "splitescrow", "token issuer")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "environment variable holding the signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !common.IsHexAddress(*subject) {
		return errors.New("-subject must be a hex address")
	}
	signingSecret, err := secret.NewSource(*secretEnv, "JWT signing secret").Get()
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken(signingSecret, *issuer, common.HexToAddress(*subject), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runAddresses(args []string) error {
	fs := flag.NewFlagSet("addresses", flag.ContinueOnError)
	configFile := fs.String("config", "", "read deployer and nonce from this configuration file")
	deployer := fs.String("deployer", config.DefaultDeployer, "deploying account")
	nonce := fs.Uint64("nonce", 0, "deployer nonce of the ledger deployment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	from, start := common.HexToAddress(*deployer), *nonce
	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		from, start = cfg.DeployerAddress(), cfg.DeployerNonce
	} else if !common.IsHexAddress(*deployer) {
		return errors.New("-deployer must be a hex address")
	}
	addrs := core.PredictAddresses(from, start)
	out := map[string]string{
		"ledger":     addrs.Ledger.Hex(),
		"claim":      addrs.Claim.Hex(),
		"dispute":    addrs.Dispute.Hex(),
		"arbitrator": addrs.Arbitrator.Hex(),
	}
	return printJSON(out)
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	endpoint := fs.String("url", "http://localhost:8080/rpc", "escrowd JSON-RPC endpoint")
	token := fs.String("token", os.Getenv("ESCROW_TOKEN"), "bearer token")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: escrowctl call [flags] <method> [params-json]")
	}
	req := rpc.RPCRequest{JSONRPC: "2.0", Method: fs.Arg(0), ID: 1}
	if fs.NArg() == 2 {
		raw := json.RawMessage(fs.Arg(1))
		if !json.Valid(raw) {
			return errors.New("params must be valid JSON")
		}
		req.Params = []json.RawMessage{raw}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, *endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t := strings.TrimSpace(*token); t != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var decoded rpc.RPCResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("unexpected response (%s): %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if decoded.Error != nil {
		return fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	return printJSON(decoded.Result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
