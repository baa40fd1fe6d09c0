package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/notify"
	"github.com/example/selfie-check/internal/screen"
	"github.com/example/selfie-check/internal/session"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a selfie for the stored session user",
	Long: `Read a JPEG from disk and upload it as selfie.jpg for the user in client storage.

Examples:
  selfie-check upload --image face.jpg`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, client backend.Client, creds session.Credentials) error {
			return runUpload(ctx, client, creds, capture.FileCamera{Path: mustGetString(cmd, "image")}, cmd.OutOrStdout())
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare the uploaded selfie with the identity document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON := mustGetBool(cmd, "json")
		return withSession(cmd, func(ctx context.Context, client backend.Client, creds session.Credentials) error {
			return runVerify(ctx, client, creds, cmd.OutOrStdout(), asJSON)
		})
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the uploaded selfie",
	Long: `Download the selfie stored for the session user and write it to a file, or to stdout
when --out is "-".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := mustGetString(cmd, "out")
		return withSession(cmd, func(ctx context.Context, client backend.Client, creds session.Credentials) error {
			return runFetch(ctx, client, creds, out, cmd.OutOrStdout(), cmd.ErrOrStderr())
		})
	},
}

func init() {
	uploadCmd.Flags().String("image", "", "Path to the JPEG to upload")
	_ = uploadCmd.MarkFlagRequired("image")

	verifyCmd.Flags().Bool("json", false, "Print the backend response as JSON")

	fetchCmd.Flags().StringP("out", "o", capture.FileName, `Output file, "-" for stdout`)

	rootCmd.AddCommand(uploadCmd, verifyCmd, fetchCmd)
}

// withSession builds the app, loads credentials and hands both to fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, client backend.Client, creds session.Credentials) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	client, err := a.backendClient()
	if err != nil {
		return err
	}
	creds, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("read client storage: %w", err)
	}
	return fn(ctx, client, creds)
}

func runUpload(ctx context.Context, client backend.Client, creds session.Credentials, cam capture.Camera, out io.Writer) error {
	catalog := notify.DefaultCatalog()
	if err := creds.Validate(); err != nil {
		return err
	}
	frame, err := capture.Grab(cam)
	if err != nil {
		return fmt.Errorf("read selfie: %w", err)
	}

	outcome := screen.Upload(ctx, client, creds, frame)
	screen.RenderUpload(&notify.Writer{Out: out}, catalog, outcome)
	if outcome.Status != screen.Succeeded {
		return outcome.Err
	}
	if outcome.Message != "" {
		fmt.Fprintln(out, outcome.Message)
	}
	return nil
}

func runVerify(ctx context.Context, client backend.Client, creds session.Credentials, out io.Writer, asJSON bool) error {
	catalog := notify.DefaultCatalog()
	w := &notify.Writer{Out: out}

	if err := creds.Validate(); err != nil {
		return err
	}
	w.Notify(catalog.Notice(notify.LevelInfo, notify.VerifyStarted))

	outcome := screen.Verify(ctx, client, creds)
	screen.RenderVerify(w, catalog, outcome)
	if outcome.Status == screen.Failed {
		return outcome.Err
	}

	result := screen.NewResult(catalog, outcome.Result)
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "similarity score: %.4f\n", result.SimilarityScore)
	fmt.Fprintf(out, "%s\n", result.Text)
	w.Navigate(notify.Navigation{Route: result.Route})
	return nil
}

func runFetch(ctx context.Context, client backend.Client, creds session.Credentials, path string, stdout, stderr io.Writer) error {
	catalog := notify.DefaultCatalog()

	outcome := screen.Fetch(ctx, client, creds)
	screen.RenderFetch(&notify.Writer{Out: stderr}, catalog, outcome)
	if outcome.Status != screen.Succeeded {
		return outcome.Err
	}

	if path == "-" {
		_, err := stdout.Write(outcome.Image.Data)
		return err
	}
	if err := os.WriteFile(path, outcome.Image.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stderr, "%s (%s, %d bytes)\n", path, outcome.Image.ContentType, len(outcome.Image.Data))
	return nil
}
