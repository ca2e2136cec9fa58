/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jacs/internal/agreement"
	"jacs/internal/crypto"
	"jacs/internal/document"
)

// agreementCmd groups multi-signer agreement operations.
var agreementCmd = &cobra.Command{
	Use:   "agreement",
	Short: "Create, sign and check multi-signer agreements",
}

var agreementCreateCmd = &cobra.Command{
	Use:   "create <payload.json>",
	Short: "Embed an agreement record into a payload and sign it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		signers, _ := cmd.Flags().GetStringSlice("signers")
		quorum, _ := cmd.Flags().GetInt("quorum")
		question, _ := cmd.Flags().GetString("question")
		context, _ := cmd.Flags().GetString("context")
		deadlineRaw, _ := cmd.Flags().GetString("deadline")
		algorithms, _ := cmd.Flags().GetStringSlice("algorithms")

		opts := agreement.Options{
			Question: question,
			Context:  context,
			Quorum:   quorum,
		}

		if deadlineRaw != "" {
			deadline, err := time.Parse(document.TimeFormat, deadlineRaw)
			if err != nil {
				slog.Error("invalid deadline", "deadline", deadlineRaw, "error", err)
				os.Exit(ExitInvalidInput)
			}

			opts.Deadline = &deadline
		}

		for _, raw := range algorithms {
			alg, err := crypto.ParseAlgorithm(raw)
			if err != nil {
				slog.Error("invalid algorithm", "algorithm", raw, "error", err)
				os.Exit(ExitInvalidInput)
			}

			opts.AllowedAlgorithms = append(opts.AllowedAlgorithms, alg)
		}

		payload := readJSONFile(args[0])

		engine := agreement.NewEngine(a.Engine(), a, a)

		signed, err := engine.Create(payload, signers, opts)
		if err != nil {
			slog.Error("failed to create agreement", "error", err)
			os.Exit(ExitInvalidInput)
		}

		printJSON(signed)
	},
}

var agreementSignCmd = &cobra.Command{
	Use:   "sign <agreement.json>",
	Short: "Append this agent's signature to an agreement",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		doc := readJSONFile(args[0])

		engine := agreement.NewEngine(a.Engine(), a, a)

		signed, err := engine.Sign(doc)
		if err != nil {
			slog.Error("failed to sign agreement", "error", err)
			os.Exit(ExitAgreementNotSatisfied)
		}

		printJSON(signed)
	},
}

var agreementCheckCmd = &cobra.Command{
	Use:   "check <agreement.json>",
	Short: "Report an agreement's completion status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		doc := readJSONFile(args[0])

		engine := agreement.NewEngine(a.Engine(), a, a)

		status, err := engine.Check(doc)
		if err != nil {
			slog.Error("failed to check agreement", "error", err)
			os.Exit(ExitInvalidInput)
		}

		printJSON(status)

		if !status.Complete {
			color.Red("agreement is not complete: %d of %d signatures", len(status.Signers), status.Quorum)
			os.Exit(ExitAgreementNotSatisfied)
		}

		color.Green("agreement complete")
	},
}

func init() {
	rootCmd.AddCommand(agreementCmd)
	agreementCmd.AddCommand(agreementCreateCmd)
	agreementCmd.AddCommand(agreementSignCmd)
	agreementCmd.AddCommand(agreementCheckCmd)

	agreementCreateCmd.Flags().Int("quorum", 0, "Required number of signatures (defaults to all signers)")
	agreementCreateCmd.Flags().String("context", "", "Context shown to signers")
	agreementCreateCmd.Flags().String("deadline", "", "RFC 3339 instant after which signatures are rejected")
	agreementCreateCmd.Flags().String("question", "", "Question the signers answer")
	agreementCreateCmd.Flags().StringSlice("algorithms", nil, "Allowed signing algorithms")
	agreementCreateCmd.Flags().StringSlice("signers", nil, "Agent IDs required to sign")
}
