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

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jacs/internal/schema"
)

// documentCmd groups document lifecycle operations.
var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Create, update and verify signed documents",
}

var documentCreateCmd = &cobra.Command{
	Use:   "create <payload.json>",
	Short: "Wrap a JSON payload in a fresh signed document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		validator := loadValidator(cmd)

		payload := readJSONFile(args[0])

		signed, err := a.Engine().CreateDocument(payload, validator)
		if err != nil {
			slog.Error("failed to create document", "error", err)
			os.Exit(ExitInvalidInput)
		}

		printJSON(signed)
	},
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update <previous.json> <new.json>",
	Short: "Produce the next signed version of a document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		previous := readJSONFile(args[0])
		next := readJSONFile(args[1])

		signed, err := a.Engine().UpdateDocument(previous, next)
		if err != nil {
			slog.Error("failed to update document", "error", err)
			os.Exit(ExitInvalidInput)
		}

		printJSON(signed)
	},
}

var documentVerifyCmd = &cobra.Command{
	Use:   "verify <document.json>",
	Short: "Verify a signed document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		validator := loadValidator(cmd)

		doc := readJSONFile(args[0])

		result := a.VerifyWithSchema(doc, validator)
		printJSON(result)

		if !result.Valid {
			color.Red("document verification failed")
			os.Exit(ExitVerificationFailed)
		}

		color.Green("document verified, signed by %s", result.SignerID)
	},
}

var documentSignFileCmd = &cobra.Command{
	Use:   "sign-file <path>",
	Short: "Sign a file descriptor with its SHA-256 content hash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		embed, _ := cmd.Flags().GetBool("embed")

		signed, err := a.SignFile(args[0], embed)
		if err != nil {
			slog.Error("failed to sign file", "path", args[0], "error", err)
			os.Exit(ExitIOError)
		}

		printJSON(signed)
	},
}

func init() {
	rootCmd.AddCommand(documentCmd)
	documentCmd.AddCommand(documentCreateCmd)
	documentCmd.AddCommand(documentUpdateCmd)
	documentCmd.AddCommand(documentVerifyCmd)
	documentCmd.AddCommand(documentSignFileCmd)

	documentCreateCmd.Flags().String("schema", "", "JSON Schema to validate against (path, URL or inline)")
	documentVerifyCmd.Flags().String("schema", "", "JSON Schema to validate against (path, URL or inline)")
	documentSignFileCmd.Flags().Bool("embed", false, "Embed the file contents as base64")
}

// loadValidator compiles the --schema flag when present.
func loadValidator(cmd *cobra.Command) *schema.Validator {
	source, _ := cmd.Flags().GetString("schema")
	if source == "" {
		return nil
	}

	validator, err := schema.NewValidator(source)
	if err != nil {
		slog.Error("failed to compile schema", "schema", source, "error", err)
		os.Exit(ExitInvalidInput)
	}

	return validator
}
