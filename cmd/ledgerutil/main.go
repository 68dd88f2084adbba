// Copyright 2024 The ledger-utils Authors
// This file is part of the ledger-utils library.
//
// The ledger-utils library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledger-utils library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledger-utils library. If not, see <http://www.gnu.org/licenses/>.

// ledgerutil locates USB hardware signing devices, resolves which derivation
// path holds a known public key, and signs and verifies Solana off-chain
// messages.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/marinade-finance/ledger-utils/offchain"
	"github.com/marinade-finance/ledger-utils/usbwallet"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "enable debug logging of device traffic",
	}
	depthFlag = &cli.UintFlag{
		Name:    "depth",
		Usage:   "minimum account discovery depth (highest index tried per path segment)",
		Value:   uint(accounts.DefaultSearchSpace.Depth),
		EnvVars: []string{"LEDGERUTIL_SEARCH_DEPTH"},
	}
	wideFlag = &cli.UintFlag{
		Name:    "wide",
		Usage:   "minimum account discovery width (longest path suffix tried)",
		Value:   uint(accounts.DefaultSearchSpace.Wide),
		EnvVars: []string{"LEDGERUTIL_SEARCH_WIDE"},
	}
	domainFlag = &cli.StringFlag{
		Name:     "domain",
		Usage:    "application domain scoping the off-chain message (up to 32 bytes, or base58 of exactly 32)",
		Required: true,
	}
	keypairFlag = &cli.StringFlag{
		Name:  "keypair",
		Usage: "path to a Solana CLI JSON keypair file to sign with",
	}
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "wallet URL of a hardware device to sign with, e.g. usb://ledger",
	}
	signerFlag = &cli.StringFlag{
		Name:     "signer",
		Usage:    "base58 public key the signature is claimed for",
		Required: true,
	}
	signatureFlag = &cli.StringFlag{
		Name:     "signature",
		Usage:    "base58 signature to verify",
		Required: true,
	}
)

func main() {
	log := logrus.New()
	app := &cli.App{
		Name:  "ledgerutil",
		Usage: "resolve hardware wallet derivation paths and sign Solana off-chain messages",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool(verboseFlag.Name) {
				log.SetLevel(logrus.TraceLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "resolve a wallet URL to a connected device and derivation path",
				ArgsUsage: "<wallet-url>",
				Flags:     []cli.Flag{depthFlag, wideFlag},
				Action:    func(ctx *cli.Context) error { return resolve(ctx, log, true) },
			},
			{
				Name:      "pubkey",
				Usage:     "print the public key a wallet URL resolves to",
				ArgsUsage: "<wallet-url>",
				Flags:     []cli.Flag{depthFlag, wideFlag},
				Action:    func(ctx *cli.Context) error { return resolve(ctx, log, false) },
			},
			{
				Name:      "sign-offchain",
				Usage:     "sign an off-chain message with a keypair file or a hardware device",
				ArgsUsage: "<message>",
				Flags:     []cli.Flag{domainFlag, keypairFlag, urlFlag, depthFlag, wideFlag},
				Action:    func(ctx *cli.Context) error { return signOffchain(ctx, log) },
			},
			{
				Name:      "verify-offchain",
				Usage:     "verify an off-chain message signature",
				ArgsUsage: "<message>",
				Flags:     []cli.Flag{domainFlag, signerFlag, signatureFlag},
				Action:    verifyOffchain,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		if hint := guidance(err); hint != "" {
			log.Error(hint)
		}
		log.Fatal(err)
	}
}

// findWallet parses a wallet URL argument, brings up the matching hub and
// resolves the locator to a bound device session. The hub's sessions are
// released on process exit by the returned cleanup, best-effort.
func findWallet(ctx *cli.Context, log *logrus.Logger, url string) (*usbwallet.RemoteWallet, func(), error) {
	locator, err := accounts.ParseWalletURL(url)
	if err != nil {
		return nil, nil, err
	}
	hub, err := usbwallet.NewHub(locator.Kind, logrus.NewEntry(log))
	if err != nil {
		return nil, nil, err
	}
	wallet, err := hub.FindWalletWithOptions(locator, usbwallet.ResolveOptions{
		Defaults: accounts.SearchSpace{
			Depth: uint32(ctx.Uint(depthFlag.Name)),
			Wide:  uint32(ctx.Uint(wideFlag.Name)),
		},
	})
	if err != nil {
		hub.CloseAll()
		return nil, nil, err
	}
	return wallet, hub.CloseAll, nil
}

func resolve(ctx *cli.Context, log *logrus.Logger, verbose bool) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one wallet URL argument")
	}
	wallet, cleanup, err := findWallet(ctx, log, ctx.Args().First())
	if err != nil {
		return err
	}
	defer cleanup()

	if !verbose {
		fmt.Println(wallet.PublicKey())
		return nil
	}
	status, _ := wallet.Status()
	fmt.Printf("pubkey: %s\n", wallet.PublicKey())
	fmt.Printf("path:   %s\n", wallet.Path())
	fmt.Printf("status: %s\n", status)
	return nil
}

func signOffchain(ctx *cli.Context, log *logrus.Logger) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one message argument")
	}
	text := ctx.Args().First()

	domain, err := parseDomain(ctx.String(domainFlag.Name))
	if err != nil {
		return err
	}
	keypair, url := ctx.String(keypairFlag.Name), ctx.String(urlFlag.Name)
	switch {
	case keypair != "" && url != "":
		return errors.New("--keypair and --url are mutually exclusive")

	case keypair != "":
		key, err := offchain.LoadKeypair(keypair)
		if err != nil {
			return err
		}
		signature, err := offchain.SignMessage(text, domain, key)
		if err != nil {
			return err
		}
		fmt.Println(base58.Encode(signature))
		return nil

	case url != "":
		wallet, cleanup, err := findWallet(ctx, log, url)
		if err != nil {
			return err
		}
		defer cleanup()

		msg, err := offchain.NewMessage(text, domain, wallet.PublicKey())
		if err != nil {
			return err
		}
		if msg.Format == offchain.FormatExtendedUTF8 {
			return fmt.Errorf("message exceeds the %d byte hardware signing limit", offchain.MaxLedgerMessageLen)
		}
		encoded, err := msg.Encode()
		if err != nil {
			return err
		}
		signature, err := wallet.SignOffchainMessage(encoded)
		if err != nil {
			return err
		}
		fmt.Println(base58.Encode(signature))
		return nil

	default:
		return errors.New("either --keypair or --url is required")
	}
}

func verifyOffchain(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one message argument")
	}
	domain, err := parseDomain(ctx.String(domainFlag.Name))
	if err != nil {
		return err
	}
	signer, err := accounts.ParsePublicKey(ctx.String(signerFlag.Name))
	if err != nil {
		return err
	}
	signature := base58.Decode(ctx.String(signatureFlag.Name))

	if !offchain.VerifyMessage(ctx.Args().First(), domain, signature, signer) {
		return errors.New("signature verification failed")
	}
	fmt.Println("signature verified")
	return nil
}

// parseDomain turns a user supplied domain string into the 32-byte
// application domain: either the base58 form of exactly 32 bytes, or a
// shorter literal string zero-padded on the right.
func parseDomain(input string) (offchain.ApplicationDomain, error) {
	var domain offchain.ApplicationDomain
	if raw := base58.Decode(input); len(raw) == offchain.ApplicationDomainLength {
		copy(domain[:], raw)
		return domain, nil
	}
	if len(input) > offchain.ApplicationDomainLength {
		return domain, fmt.Errorf("application domain %q longer than %d bytes", input, offchain.ApplicationDomainLength)
	}
	copy(domain[:], input)
	return domain, nil
}

// guidance maps resolution failures to actionable device advice; the error
// kinds themselves stay untouched for scripting.
func guidance(err error) string {
	var notFound *accounts.PubkeyNotFoundError
	switch {
	case errors.Is(err, accounts.ErrNoDeviceFound):
		return "No device detected: plug the hardware wallet in, unlock it and open the Solana app"
	case errors.Is(err, usbwallet.ErrVendorUnsupported):
		return "This vendor cannot sign Solana payloads yet; use a Ledger device"
	case errors.As(err, &notFound):
		return "Key not found on any device: check the device seed, or widen the search with --depth/--wide"
	default:
		return ""
	}
}
