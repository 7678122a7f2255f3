package commands

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/naisho/pkg/diceword"
	"github.com/backkem/naisho/pkg/sas"
	"github.com/backkem/naisho/pkg/token"
)

// sas <fpA> <fpB>: print the short authentication string.
func sasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sas <fingerprint-a> <fingerprint-b>",
		Short: "Print the SAS for two transport fingerprints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := sas.Compute(cmd.Context(), diceword.Default(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

// inspect <token>: decode a token and print its fields.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode an offer or answer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := args[0]
			t, err := token.Decode(wire)
			if err != nil {
				return err
			}
			words, err := token.DisplayWordsFromWire(cmd.Context(), diceword.Default(), wire)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "role:        %s\n", t.Role())
			fmt.Fprintf(out, "fingerprint: %s\n", t.Fingerprint())
			fmt.Fprintf(out, "created:     %s\n", t.Created().UTC().Format(time.RFC3339))

			switch v := t.(type) {
			case *token.Offer:
				fmt.Fprintf(out, "expires:     %s\n", v.ExpiresAt().UTC().Format(time.RFC3339))
				if msg, expired := token.ExpirationMessage(v, time.Now()); expired {
					fmt.Fprintf(out, "status:      %s\n", msg)
				} else {
					fmt.Fprintf(out, "status:      valid\n")
				}
				fmt.Fprintf(out, "read-only:   %t\n", v.Policy.PeerReadOnly)
				fmt.Fprintf(out, "transport:   %d bytes\n", len(v.TransportOffer))
			case *token.Answer:
				fmt.Fprintf(out, "answers:     %s\n", v.AckOfferDigest)
				fmt.Fprintf(out, "transport:   %d bytes\n", len(v.TransportAnswer))
			}
			fmt.Fprintf(out, "words:       %s\n", strings.Join(words, " "))
			return nil
		},
	}
}

// words <hex>: print display words for arbitrary bytes.
func wordsCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "words <hex>",
		Short: "Print display words for hex-encoded bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("decode hex: %w", err)
			}
			words, err := diceword.Default().WordsFromBytes(cmd.Context(), data, count)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(words, " "))
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", token.DisplayWordCount, "number of words")
	return cmd
}
