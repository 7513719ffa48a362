package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/lockbox-sh/lockbox/internal/service"
	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "show":
		if err := runShow(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "save":
		if err := runSave(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "change-password":
		if err := runChangePassword(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "forget-key":
		if err := runForgetKey(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "calibrate":
		if err := runCalibrate(os.Args[2:]); err != nil {
			handleError(err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}
	if errors.Is(err, vault.ErrInvalidPassword) {
		// Tampered fast parameters also end here; the message deliberately
		// does not reveal which check failed.
		fmt.Fprintln(os.Stderr, "invalid password")
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	var parts int
	fs.StringVar(&dir, "dir", "", "vault directory")
	fs.IntVar(&parts, "parts", 3, "number of payload part files")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	pw, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer krypto.Zeroize(pw)

	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer krypto.Zeroize(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	svc, err := service.New(dir, service.Options{})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Calibrating key derivation for this device...")
	if err := svc.CreateEmpty(context.Background(), string(pw), parts); err != nil {
		return fmt.Errorf("create vault: %w", err)
	}

	fmt.Printf("Vault created in %s (%d parts)\n", dir, parts)
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	fs.StringVar(&dir, "dir", "", "vault directory")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, err := service.New(dir, service.Options{})
	if err != nil {
		return err
	}

	pw, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer krypto.Zeroize(pw)

	plaintext, mk, err := svc.Open(context.Background(), string(pw))
	if err != nil {
		return err
	}
	defer mk.Destroy()
	defer krypto.Zeroize(plaintext)

	os.Stdout.Write(plaintext)
	fmt.Println()
	return nil
}

func runSave(args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	var in string
	fs.StringVar(&dir, "dir", "", "vault directory")
	fs.StringVar(&in, "in", "", "file with the new vault contents (default stdin)")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	var plaintext []byte
	var err error
	if in == "" {
		plaintext, err = io.ReadAll(os.Stdin)
	} else {
		plaintext, err = os.ReadFile(in)
	}
	if err != nil {
		return fmt.Errorf("read contents: %w", err)
	}
	defer krypto.Zeroize(plaintext)

	svc, err := service.New(dir, service.Options{})
	if err != nil {
		return err
	}

	pw, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer krypto.Zeroize(pw)

	old, mk, err := svc.Open(context.Background(), string(pw))
	if err != nil {
		return err
	}
	krypto.Zeroize(old)
	defer mk.Destroy()

	if err := svc.Save(mk, plaintext); err != nil {
		return fmt.Errorf("save vault: %w", err)
	}

	fmt.Println("Vault saved")
	return nil
}

func runChangePassword(args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	fs.StringVar(&dir, "dir", "", "vault directory")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, err := service.New(dir, service.Options{})
	if err != nil {
		return err
	}

	oldPw, err := promptPassword("Enter current master password: ")
	if err != nil {
		return fmt.Errorf("read current password: %w", err)
	}
	defer krypto.Zeroize(oldPw)

	newPw, err := promptPassword("Enter new master password: ")
	if err != nil {
		return fmt.Errorf("read new password: %w", err)
	}
	defer krypto.Zeroize(newPw)

	confirm, err := promptPassword("Confirm new master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer krypto.Zeroize(confirm)

	if !bytes.Equal(newPw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	if err := svc.ChangePassword(context.Background(), string(oldPw), string(newPw)); err != nil {
		return err
	}

	fmt.Println("Master password changed")
	return nil
}

func runForgetKey(args []string) error {
	fs := flag.NewFlagSet("forget-key", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	fs.StringVar(&dir, "dir", "", "vault directory")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, err := service.New(dir, service.Options{})
	if err != nil {
		return err
	}
	if err := svc.DeleteDerivedKey(); err != nil {
		return fmt.Errorf("remove derived key: %w", err)
	}

	fmt.Println("Stored key removed; the next unlock uses the slow derivation")
	return nil
}

func runCalibrate(args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var target time.Duration
	fs.DurationVar(&target, "target", krypto.SlowTarget, "derivation latency target")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	params, err := krypto.Calibrate(context.Background(), target, krypto.DefaultSlowBounds())
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	fmt.Printf("memoryKb=%d iterations=%d parallelism=%d\n",
		params.MemoryKB, params.Iterations, params.Parallelism)
	return nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: lockbox <command> [flags]

commands:
  init             create a new vault             (--dir, --parts)
  show             decrypt and print the vault    (--dir)
  save             replace the vault contents     (--dir, --in)
  change-password  re-key under a new password    (--dir)
  forget-key       drop the stored wrapped key    (--dir)
  calibrate        benchmark the KDF              (--target)
  version          print the CLI version`)
}
