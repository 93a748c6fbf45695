package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/gsmmodem/at"
	"i4.energy/across/gsmmodem/pdu"
)

var (
	rootCmd = &cobra.Command{
		Use:           "pdutool",
		Short:         "Encode and decode SMS PDUs",
		Long:          "pdutool builds the PDUs a modem expects for AT+CMGS and decodes the ones it returns for AT+CMGR and AT+CMGL.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	encodeCmd = &cobra.Command{
		Use:   "encode --to <number> <text>",
		Short: "Encode text into SUBMIT PDUs, one per part",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	decodeCmd = &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode a PDU line; reads one per line from stdin without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runInteractive(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runDecode(cmd.OutOrStdout(), args[0])
		},
	}

	to               string
	smsc             string
	validity         time.Duration
	rejectDuplicates bool
	merge            bool
)

func init() {
	encodeCmd.Flags().StringVar(&to, "to", "", "destination number, + for international")
	encodeCmd.Flags().StringVar(&smsc, "smsc", "", "service centre number (default: SIM)")
	encodeCmd.Flags().DurationVar(&validity, "validity", 0, "relative validity period, e.g. 24h")
	encodeCmd.Flags().BoolVar(&rejectDuplicates, "reject-duplicates", false, "set TP-RD")
	encodeCmd.MarkFlagRequired("to")

	decodeCmd.Flags().BoolVar(&merge, "merge", false, "merge concatenated parts read from stdin")

	rootCmd.AddCommand(encodeCmd, decodeCmd)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := rootCmd.Execute(); err != nil {
		logger.Error("pdutool failed", "error", err)
		os.Exit(1)
	}
}

func runEncode(w io.Writer, text string) error {
	var opts []pdu.Option
	if validity > 0 {
		opts = append(opts, pdu.WithValidityPeriod(validity))
	}
	if rejectDuplicates {
		opts = append(opts, pdu.WithRejectDuplicates())
	}

	parts, err := pdu.NewEncoder(opts...).Encode(to, text, smsc)
	if err != nil {
		return err
	}
	for _, p := range parts {
		fmt.Fprintf(w, "%s\n%s\n", at.SendPDU(p.Length), p.PduCode)
	}
	return nil
}

func runDecode(w io.Writer, hex string) error {
	msg, err := pdu.Decode(hex)
	if err != nil {
		return err
	}
	return printMessage(w, msg)
}

// runInteractive decodes every non-empty line. Undecodable lines are
// reported and skipped. With --merge the output is held back until the
// input ends so parts can be joined.
func runInteractive(r io.Reader, w io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	scanner := bufio.NewScanner(r)

	var msgs []*pdu.Message
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == at.OK || strings.HasPrefix(line, "AT") || strings.HasPrefix(line, "+CMG") {
			continue
		}
		msg, err := pdu.Decode(line)
		if err != nil {
			logger.Error("failed to decode PDU", "line", line, "error", err)
			continue
		}
		if merge {
			msgs = append(msgs, msg)
			continue
		}
		if err := printMessage(w, msg); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, msg := range pdu.Reassemble(msgs) {
		if err := printMessage(w, msg); err != nil {
			return err
		}
	}
	return nil
}

func printMessage(w io.Writer, msg *pdu.Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Type   string `json:"type"`
		Coding string `json:"coding"`
		*pdu.Message
	}{msg.Type.String(), msg.Coding.String(), msg})
}
