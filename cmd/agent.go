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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jacs/internal/agent"
	"jacs/internal/config"
)

// agentCmd groups agent identity operations.
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the agent identity",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate keys and a self-signed agent descriptor",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.New()
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(ExitInvalidInput)
		}

		name, _ := cmd.Flags().GetString("name")
		agentType, _ := cmd.Flags().GetString("type")

		a, err := agent.Create(cfg, name, agentType, cfg.PrivateKeyPassword)
		if err != nil {
			slog.Error("failed to create agent", "error", err)
			os.Exit(ExitIdentityError)
		}
		defer a.Dispose()

		color.Green("agent created: %s", a.ID())

		printJSON(a.Descriptor())
	},
}

var agentVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Load the agent and re-verify its self-signature",
	Run: func(cmd *cobra.Command, args []string) {
		a := loadAgent()
		defer a.Dispose()

		result := a.VerifySelf()
		printJSON(result)

		if !result.Valid {
			color.Red("agent self-verification failed")
			os.Exit(ExitVerificationFailed)
		}

		color.Green("agent %s verified", a.ID())
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentVerifyCmd)

	agentCreateCmd.Flags().String("name", "", "Human-readable agent name")
	agentCreateCmd.Flags().String("type", "ai", "Agent type: human, human-org, hybrid, ai")
}

// loadAgent loads the configured identity or exits with the identity error code.
func loadAgent() *agent.Agent {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(ExitInvalidInput)
	}

	a, err := agent.Load(cfg)
	if err != nil {
		slog.Error("failed to load agent", "error", err)
		os.Exit(ExitIdentityError)
	}

	return a
}

// readJSONFile loads a JSON object from disk or exits with an I/O or input error.
func readJSONFile(path string) map[string]any {
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read file", "path", path, "error", err)
		os.Exit(ExitIOError)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Error("file is not a JSON object", "path", path, "error", err)
		os.Exit(ExitInvalidInput)
	}

	return doc
}

// printJSON pretty-prints a value to stdout.
func printJSON(value any) {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		slog.Error("failed to marshal output", "error", err)
		os.Exit(ExitIOError)
	}

	fmt.Println(string(out))
}
