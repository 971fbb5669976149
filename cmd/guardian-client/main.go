package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/guardial/account-recovery-backend/cryptoutils"
	"github.com/guardial/account-recovery-backend/httpserver"
	"github.com/hashicorp/vault/shamir"
	"github.com/urfave/cli/v2"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Recovery server address to request",
}
var flagIdentity *cli.StringFlag = &cli.StringFlag{
	Name:     "identity",
	Required: true,
	Usage:    "Caller identity sent in the X-Identity header",
}
var flagOwner *cli.StringFlag = &cli.StringFlag{
	Name:     "owner",
	Required: true,
	Usage:    "Account owner the operation targets",
}

// sealedShare is one entry of the split manifest: a share sealed for a
// specific guardian, ready to be registered with the server.
type sealedShare struct {
	ShareID          string `json:"share_id"`
	Guardian         string `json:"guardian"`
	EncryptedPayload []byte `json:"encrypted_payload"`
}

func main() {
	app := &cli.App{
		Name:  "guardian-client",
		Usage: "Split, register and recombine guardian key shares",
		Commands: []*cli.Command{
			{
				Name:        "keygen",
				Usage:       "Generate a guardian sealing key pair",
				Description: "Writes <out>.key (private) and <out>.pub (public) PEM files.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: "guardian", Usage: "output file prefix"},
				},
				Action: runKeygen,
			},
			{
				Name:        "split",
				Usage:       "Split a secret into sealed guardian shares",
				Description: "Splits the secret k-of-n with Shamir's scheme and seals each share to one guardian public key. Emits a JSON manifest on stdout.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret-file", Required: true, Usage: "file holding the secret to split"},
					&cli.IntFlag{Name: "threshold", Value: 2, Usage: "shares required to recombine"},
					&cli.StringSliceFlag{Name: "guardian", Required: true, Usage: "guardian spec as <identity>:<pubkey.pem>, repeated per guardian"},
				},
				Action: runSplit,
			},
			{
				Name:        "combine",
				Usage:       "Recombine unsealed shares into the secret",
				Description: "Opens each sealed share with the private key and recombines the plaintext shares. Prints the secret to stdout.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key-file", Required: true, Usage: "guardian private key PEM"},
					&cli.StringSliceFlag{Name: "share-file", Required: true, Usage: "sealed share file, repeated"},
				},
				Action: runCombine,
			},
			{
				Name:  "add-guardian",
				Usage: "Register a sealed share with the server, adding its guardian",
				Flags: []cli.Flag{
					flagServerAddr, flagIdentity,
					&cli.StringFlag{Name: "share-file", Required: true, Usage: "sealed share manifest entry (JSON)"},
				},
				Action: runAddGuardian,
			},
			{
				Name:   "approve",
				Usage:  "Approve the owner's recovery session as a guardian",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagOwner},
				Action: runApprove,
			},
			{
				Name:  "submit-share",
				Usage: "Mark a held share as collected for the owner's session",
				Flags: []cli.Flag{
					flagServerAddr, flagIdentity, flagOwner,
					&cli.StringFlag{Name: "share-id", Required: true, Usage: "identifier of the held share"},
				},
				Action: runSubmitShare,
			},
			{
				Name:  "finalize",
				Usage: "Finalize a ready session, issuing the access grant",
				Flags: []cli.Flag{
					flagServerAddr, flagOwner,
					&cli.StringFlag{Name: "temporary-identity", Required: true, Usage: "temporary identity the grant is issued to"},
					&cli.StringFlag{Name: "access-key-file", Required: true, Usage: "file with the re-encrypted account access key"},
				},
				Action: runFinalize,
			},
			{
				Name:  "activate",
				Usage: "Consume the grant, registering this device on the account",
				Flags: []cli.Flag{
					flagServerAddr, flagIdentity,
					&cli.StringFlag{Name: "original-identity", Required: true, Usage: "identity of the recovered account"},
					&cli.StringFlag{Name: "device-name", Value: "recovered-device", Usage: "name for the new device record"},
				},
				Action: runActivate,
			},
			{
				Name:   "access-key",
				Usage:  "Fetch the encrypted access key for the caller's grant",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity},
				Action: runAccessKey,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runKeygen(cCtx *cli.Context) error {
	prefix := cCtx.String("out")
	privPEM, pubPEM, err := cryptoutils.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := os.WriteFile(prefix+".key", privPEM, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(prefix+".pub", pubPEM, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s.key and %s.pub\n", prefix, prefix)
	return nil
}

func runSplit(cCtx *cli.Context) error {
	secret, err := os.ReadFile(cCtx.String("secret-file"))
	if err != nil {
		return err
	}
	threshold := cCtx.Int("threshold")
	guardianSpecs := cCtx.StringSlice("guardian")
	if threshold < 2 || threshold > len(guardianSpecs) {
		return fmt.Errorf("threshold %d out of range for %d guardians", threshold, len(guardianSpecs))
	}

	shares, err := shamir.Split(secret, len(guardianSpecs), threshold)
	if err != nil {
		return fmt.Errorf("failed to split secret: %w", err)
	}

	manifest := make([]sealedShare, 0, len(shares))
	for i, spec := range guardianSpecs {
		identity, pubkeyFile, ok := splitSpec(spec)
		if !ok {
			return fmt.Errorf("invalid guardian spec %q, want <identity>:<pubkey.pem>", spec)
		}
		pubPEM, err := os.ReadFile(filepath.Clean(pubkeyFile))
		if err != nil {
			return err
		}
		sealed, err := cryptoutils.EncryptWithPublicKey(pubPEM, shares[i])
		if err != nil {
			return fmt.Errorf("failed to seal share for %s: %w", identity, err)
		}
		manifest = append(manifest, sealedShare{
			ShareID:          uuid.Must(uuid.NewRandom()).String(),
			Guardian:         identity,
			EncryptedPayload: sealed,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

// splitSpec splits "identity:path" on the last colon so identities may
// themselves contain colons.
func splitSpec(spec string) (identity, path string, ok bool) {
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], i > 0 && i < len(spec)-1
		}
	}
	return "", "", false
}

func runCombine(cCtx *cli.Context) error {
	privPEM, err := os.ReadFile(cCtx.String("key-file"))
	if err != nil {
		return err
	}

	var plainShares [][]byte
	for _, f := range cCtx.StringSlice("share-file") {
		data, err := os.ReadFile(filepath.Clean(f))
		if err != nil {
			return err
		}
		var share sealedShare
		if err := json.Unmarshal(data, &share); err != nil {
			return fmt.Errorf("invalid share file %s: %w", f, err)
		}
		plain, err := cryptoutils.DecryptWithPrivateKey(privPEM, share.EncryptedPayload)
		if err != nil {
			return fmt.Errorf("failed to open share %s: %w", share.ShareID, err)
		}
		plainShares = append(plainShares, plain)
	}

	secret, err := shamir.Combine(plainShares)
	if err != nil {
		return fmt.Errorf("failed to recombine shares: %w", err)
	}
	_, err = os.Stdout.Write(secret)
	return err
}

func runAddGuardian(cCtx *cli.Context) error {
	data, err := os.ReadFile(cCtx.String("share-file"))
	if err != nil {
		return err
	}
	var share sealedShare
	if err := json.Unmarshal(data, &share); err != nil {
		return fmt.Errorf("invalid share file: %w", err)
	}

	return postJSON(cCtx, "/api/guardians", map[string]interface{}{
		"guardian":          share.Guardian,
		"action":            "add",
		"share_id":          share.ShareID,
		"encrypted_payload": share.EncryptedPayload,
	})
}

func runApprove(cCtx *cli.Context) error {
	return postJSON(cCtx, "/api/recovery/"+cCtx.String("owner")+"/approve", nil)
}

func runSubmitShare(cCtx *cli.Context) error {
	return postJSON(cCtx, "/api/recovery/"+cCtx.String("owner")+"/shares", map[string]interface{}{
		"share_id": cCtx.String("share-id"),
	})
}

func runFinalize(cCtx *cli.Context) error {
	accessKey, err := os.ReadFile(cCtx.String("access-key-file"))
	if err != nil {
		return err
	}
	return postJSON(cCtx, "/api/recovery/"+cCtx.String("owner")+"/finalize", map[string]interface{}{
		"temporary_identity":   cCtx.String("temporary-identity"),
		"encrypted_access_key": accessKey,
	})
}

func runActivate(cCtx *cli.Context) error {
	return postJSON(cCtx, "/api/recovery/activate", map[string]interface{}{
		"original_identity": cCtx.String("original-identity"),
		"device": map[string]interface{}{
			"id":   uuid.Must(uuid.NewRandom()).String(),
			"name": cCtx.String("device-name"),
		},
	})
}

func runAccessKey(cCtx *cli.Context) error {
	body, err := request(cCtx, http.MethodGet, "/api/recovery/access-key", nil)
	if err != nil {
		return err
	}
	var resp struct {
		EncryptedAccessKey []byte `json:"encrypted_access_key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(resp.EncryptedAccessKey))
	return nil
}

// postJSON sends a POST with the given body and echoes the response.
func postJSON(cCtx *cli.Context, path string, body interface{}) error {
	respBody, err := request(cCtx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	fmt.Println(string(respBody))
	return nil
}

// request performs an API call with the caller identity header set.
func request(cCtx *cli.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cCtx.String("server-addr")+path, reader)
	if err != nil {
		return nil, err
	}
	if identity := cCtx.String("identity"); identity != "" {
		req.Header.Set(httpserver.IdentityHeader, identity)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return respBody, nil
}
