// Command payer drives a payment session against the bank from the payer's
// side: the hosted card form, the QR payment page with its countdown, or a
// scan of a rendered QR code from a directory of image frames.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pavlovicisidora/sep/internal/bankclient"
	"github.com/pavlovicisidora/sep/internal/card"
	"github.com/pavlovicisidora/sep/internal/config"
	"github.com/pavlovicisidora/sep/internal/redirect"
	"github.com/pavlovicisidora/sep/internal/scan"
	"github.com/pavlovicisidora/sep/internal/sched"
	"github.com/pavlovicisidora/sep/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	backend := bankclient.New(cfg.Payer.BankBaseURL, nil)
	scheduler := sched.New()

	var runErr error
	switch os.Args[1] {
	case "card":
		runErr = runCard(os.Args[2:], backend, scheduler, logger)
	case "qr":
		runErr = runQR(os.Args[2:], backend, scheduler, logger)
	case "scan":
		runErr = runScan(os.Args[2:], backend, scheduler, logger)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		logger.Error("payment flow failed", zap.Error(runErr))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: payer <card|qr|scan> [flags]")
}

// runCard loads a hosted card session, gates the input through the form, and
// submits exactly once.
func runCard(args []string, backend *bankclient.Client, scheduler sched.Scheduler, logger *zap.Logger) error {
	fs := flag.NewFlagSet("card", flag.ExitOnError)
	paymentID := fs.String("payment", "", "bank payment id (PAY-...)")
	pan := fs.String("pan", "", "card number")
	holder := fs.String("holder", "", "card holder name")
	expiry := fs.String("expiry", "", "expiry date MM/YY")
	cvc := fs.String("cvc", "", "security code")
	fs.Parse(args)

	if *paymentID == "" {
		return fmt.Errorf("-payment is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	machine := session.NewMachine(backend, scheduler, logger.With(zap.String("component", "SessionMachine")))
	defer machine.Close()

	sess, err := machine.LoadCard(ctx, *paymentID)
	if err != nil {
		return err
	}
	fmt.Printf("Payment %s: %.2f %s (%s)\n", sess.ID, sess.Amount, sess.Currency, sess.Status)
	if sess.Status != session.StatusPending {
		return fmt.Errorf("payment session is %s", sess.Status)
	}

	form := card.NewForm()
	form.SetPAN(*pan)
	form.SetCardHolderName(*holder)
	form.SetExpiryDate(*expiry)
	form.SetSecurityCode(*cvc)
	fmt.Printf("Detected brand: %s\n", form.Brand())

	outcome, err := machine.ConfirmCard(ctx, form)
	if err != nil {
		return err
	}
	return issueRedirect(scheduler, outcome, nil)
}

// runQR loads a QR session, renders the countdown, and confirms from the
// payer's settlement account.
func runQR(args []string, backend *bankclient.Client, scheduler sched.Scheduler, logger *zap.Logger) error {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	paymentID := fs.String("payment", "", "bank payment id (QR-...)")
	account := fs.String("account", "", "payer settlement account number")
	fs.Parse(args)

	if *paymentID == "" {
		return fmt.Errorf("-payment is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	machine := session.NewMachine(backend, scheduler, logger.With(zap.String("component", "SessionMachine")))
	defer machine.Close()

	sess, err := machine.LoadQR(ctx, *paymentID)
	if err != nil {
		return err
	}
	fmt.Printf("Payment %s to %s: %.2f %s (%s)\n",
		sess.ID, sess.RecipientName, sess.Amount, sess.Currency, sess.Status)
	if sess.Status != session.StatusPending {
		return fmt.Errorf("payment session is %s", sess.Status)
	}

	machine.StartCountdown(func(remaining int64) {
		fmt.Printf("\rTime remaining: %ds ", remaining)
	})

	// The rendered code is what the payer's banking app would scan; decode it
	// back to its payload and run it through the bank's validator before
	// confirming.
	payload, err := decodeSessionQR(sess.QRCodeBase64)
	if err != nil {
		return err
	}
	result, err := backend.ValidateQR(ctx, payload)
	if err != nil {
		return err
	}

	outcome, err := machine.ConfirmQR(ctx, *result, *account)
	if err != nil {
		return err
	}
	fmt.Println()
	return issueRedirect(scheduler, outcome, []redirect.Option{
		redirect.WithSuccessDelay(time.Second),
	})
}

// runScan runs the scan loop over a directory of image frames, validates the
// decoded payload with the bank, and confirms the payment it names.
func runScan(args []string, backend *bankclient.Client, scheduler sched.Scheduler, logger *zap.Logger) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	paymentID := fs.String("payment", "", "bank payment id (QR-...)")
	framesDir := fs.String("frames", "", "directory of frames for the rear camera")
	frontDir := fs.String("front-frames", "", "directory of frames for the front camera")
	account := fs.String("account", "", "payer settlement account number")
	fs.Parse(args)

	if *paymentID == "" {
		return fmt.Errorf("-payment is required")
	}
	if *framesDir == "" && *frontDir == "" {
		return fmt.Errorf("-frames or -front-frames is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	payloadCh := make(chan string, 1)
	var once sync.Once

	scanner := scan.New(scan.Config{
		Opener:    &scan.DirOpener{Dir: *framesDir, FrontDir: *frontDir},
		Decoder:   scan.NewZxingDecoder(),
		Scheduler: scheduler,
		Logger:    logger.With(zap.String("component", "Scanner")),
		OnPayload: func(payload string) {
			once.Do(func() { payloadCh <- payload })
		},
	})
	defer scanner.Close()

	if err := scanner.Start(); err != nil {
		return fmt.Errorf("%s", scanner.UserError())
	}

	var payload string
	select {
	case payload = <-payloadCh:
	case <-ctx.Done():
		return fmt.Errorf("no QR code found before timeout")
	}
	if err := scanner.Close(); err != nil {
		logger.Warn("failed to release capture device", zap.Error(err))
	}
	fmt.Printf("Decoded payload: %s\n", payload)

	result, err := backend.ValidateQR(ctx, payload)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("invalid payment code: %v", result.Errors)
	}

	machine := session.NewMachine(backend, scheduler, logger.With(zap.String("component", "SessionMachine")))
	defer machine.Close()

	if _, err := machine.LoadQR(ctx, *paymentID); err != nil {
		return err
	}
	outcome, err := machine.ConfirmQR(ctx, *result, *account)
	if err != nil {
		return err
	}
	return issueRedirect(scheduler, outcome, []redirect.Option{
		redirect.WithSuccessDelay(time.Second),
	})
}

// decodeSessionQR turns the session's rendered QR PNG back into its payload.
func decodeSessionQR(qrCodeBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(qrCodeBase64)
	if err != nil {
		return "", fmt.Errorf("malformed QR image encoding: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("malformed QR image: %w", err)
	}
	return scan.NewZxingDecoder().Decode(img)
}

func issueRedirect(scheduler sched.Scheduler, outcome *redirect.Outcome, opts []redirect.Option) error {
	done := make(chan struct{})
	redirector := redirect.New(scheduler, func(target string) {
		fmt.Printf("Redirecting to %s\n", target)
		close(done)
	}, opts...)

	if outcome.Success {
		fmt.Printf("Payment successful: %s\n", outcome.Message)
	} else {
		fmt.Printf("Payment failed: %s\n", outcome.Message)
	}

	if err := redirector.Issue(*outcome); err != nil {
		return err
	}
	if plan, ok := redirector.PlanFor(*outcome); ok {
		select {
		case <-done:
		case <-time.After(plan.Delay + time.Second):
		}
	}
	return nil
}
