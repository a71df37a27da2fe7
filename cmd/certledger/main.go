package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/org/certledger/internal/fingerprint"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "certledger",
	Short: "CertLedger CLI",
	Long:  "A CLI for managing certificates in CertLedger.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(operatorCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(fingerprintCmd())
}

// unwrap pulls the "data" envelope off an API response.
func unwrap(result map[string]any) map[string]any {
	if d, ok := result["data"].(map[string]any); ok {
		return d
	}
	return result
}

// --- operator ---

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "operator", Short: "Ledger operator commands"}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("owner-name")
			client := newClient()
			result, err := client.post("/v1/sys/init", map[string]any{
				"display_name": name,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if tok, ok := result["owner_token"].(string); ok {
				cfg.Token = tok
				if err := saveConfig(); err == nil {
					fmt.Fprintln(os.Stderr, "Owner token saved to config. It will not be shown again.")
				}
			}
			printResult(result)
			return nil
		},
	}
	initCmd.Flags().String("owner-name", "registry-owner", "Display name for the owner identity")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/sys/health")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(initCmd, statusCmd)
	return cmd
}

// --- identity ---

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity", Short: "Identity management"}

	createCmd := &cobra.Command{
		Use:   "create <display-name>",
		Short: "Create an identity and save its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/auth/identity", map[string]any{
				"display_name": args[0],
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			save, _ := cmd.Flags().GetBool("save")
			if save {
				if tok, ok := result["token"].(string); ok {
					cfg.Token = tok
					if err := saveConfig(); err == nil {
						fmt.Fprintln(os.Stderr, "Token saved to config.")
					}
				}
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().Bool("save", true, "Save the new token as the active CLI token")

	selfCmd := &cobra.Command{
		Use:   "self",
		Short: "Show the identity behind the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/auth/identity/self")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	cmd.AddCommand(createCmd, selfCmd)
	return cmd
}

// --- registry ---

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "registry", Short: "Master registry commands (owner only)"}

	registerCmd := &cobra.Command{
		Use:   "register <family> <factory-id>",
		Short: "Register a new factory version for a family",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/registry/"+args[0]+"/versions", map[string]any{
				"factory_id": args[1],
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	setCurrentCmd := &cobra.Command{
		Use:   "set-current <family> <index>",
		Short: "Point a family at a registered factory version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				printError("index must be an integer")
				return nil
			}
			client := newClient()
			if _, err := client.put("/v1/registry/"+args[0]+"/current", map[string]any{
				"index": index,
			}); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess(fmt.Sprintf("Success! %s now points at version %d.", args[0], index))
			return nil
		},
	}

	currentCmd := &cobra.Command{
		Use:   "current <family>",
		Short: "Show the family's current factory version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/registry/" + args[0] + "/current")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <family>",
		Short: "Show the family's full factory version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/registry/" + args[0] + "/versions")
			if err != nil {
				printError(err.Error())
				return nil
			}
			state := unwrap(result)
			if versions, ok := state["versions"].([]any); ok {
				fmt.Printf("current_index: %v\n\n", state["current_index"])
				printList(versions)
				return nil
			}
			printResult(state)
			return nil
		},
	}

	cmd.AddCommand(registerCmd, setCurrentCmd, currentCmd, historyCmd)
	return cmd
}

// --- cert ---

func certCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cert", Short: "Certificate commands"}

	createCmd := &cobra.Command{
		Use:   "create <family> <title>",
		Short: "Create a certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("activation-code")
			client := newClient()
			result, err := client.post("/v1/certificates", map[string]any{
				"family":          args[0],
				"title":           args[1],
				"activation_code": code,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}
	createCmd.Flags().String("activation-code", "", "Activation code (required for public and private)")

	listCmd := &cobra.Command{
		Use:   "list <family>",
		Short: "List a family's certificates in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/certificates?family=" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if items, ok := result["data"].([]any); ok {
				printList(items)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/certificates/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	addVersionCmd := &cobra.Command{
		Use:   "add-version <id>",
		Short: "Append a version record to a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}

			jsonHash, _ := cmd.Flags().GetString("json-hash")
			if f, _ := cmd.Flags().GetString("json-file"); f != "" {
				data, err := os.ReadFile(f)
				if err != nil {
					printError(err.Error())
					return nil
				}
				jsonHash = fingerprint.Sum(data)
			}
			softHash, _ := cmd.Flags().GetString("soft-copy-hash")
			if f, _ := cmd.Flags().GetString("soft-copy-file"); f != "" {
				data, err := os.ReadFile(f)
				if err != nil {
					printError(err.Error())
					return nil
				}
				softHash = fingerprint.Sum(data)
			}
			body["json_hash"] = jsonHash
			body["soft_copy_hash"] = softHash

			if link, _ := cmd.Flags().GetString("storage-link"); link != "" {
				body["storage_link"] = link
			}
			start, _ := cmd.Flags().GetInt64("start-date")
			end, _ := cmd.Flags().GetInt64("end-date")
			body["start_date"] = start
			body["end_date"] = end

			client := newClient()
			result, err := client.post("/v1/certificates/"+args[0]+"/versions", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}
	addVersionCmd.Flags().String("json-hash", "", "Fingerprint of the JSON document")
	addVersionCmd.Flags().String("json-file", "", "JSON document file; its fingerprint is computed locally")
	addVersionCmd.Flags().String("soft-copy-hash", "", "Fingerprint of the soft copy")
	addVersionCmd.Flags().String("soft-copy-file", "", "Soft copy file; its fingerprint is computed locally")
	addVersionCmd.Flags().String("storage-link", "", "Storage pointer (broadcast and public only)")
	addVersionCmd.Flags().Int64("start-date", 0, "Validity start (unix seconds)")
	addVersionCmd.Flags().Int64("end-date", 0, "Validity end (unix seconds)")

	activateCmd := &cobra.Command{
		Use:   "activate <id> [code]",
		Short: "Activate a certificate with its activation code",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			if len(args) > 1 {
				code = args[1]
			} else {
				fmt.Print("Activation Code: ")
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Scan()
				code = strings.TrimSpace(scanner.Text())
			}
			client := newClient()
			result, err := client.post("/v1/certificates/"+args[0]+"/activate", map[string]any{
				"activation_code": code,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	versionsCmd := &cobra.Command{
		Use:   "versions <id>",
		Short: "List a certificate's version records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/certificates/" + args[0] + "/versions")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if items, ok := result["data"].([]any); ok {
				printList(items)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	currentVersionCmd := &cobra.Command{
		Use:   "current <id>",
		Short: "Show the certificate's active version record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/certificates/" + args[0] + "/versions/current")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version <id> <n>",
		Short: "Show one version record by 1-based number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/certificates/" + args[0] + "/versions/" + args[1])
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd, getCmd, addVersionCmd, activateCmd, versionsCmd, currentVersionCmd, versionCmd)
	return cmd
}

// --- record ---

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Version record commands"}

	getCmd := &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show a version record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/records/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(unwrap(result))
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <record-id> <active|disabled>",
		Short: "Set a record's status (certificate owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if _, err := client.put("/v1/records/"+args[0]+"/status", map[string]any{
				"status": args[1],
			}); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Status updated.")
			return nil
		},
	}

	linksCmd := &cobra.Command{
		Use:   "links <record-id>",
		Short: "Set a private record's data links (bound user only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonLink, _ := cmd.Flags().GetString("json-link")
			softLink, _ := cmd.Flags().GetString("soft-copy-link")
			client := newClient()
			if _, err := client.put("/v1/records/"+args[0]+"/links", map[string]any{
				"json_link":      jsonLink,
				"soft_copy_link": softLink,
			}); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Links updated.")
			return nil
		},
	}
	linksCmd.Flags().String("json-link", "", "Pointer to the JSON document")
	linksCmd.Flags().String("soft-copy-link", "", "Pointer to the soft copy")

	cmd.AddCommand(getCmd, statusCmd, linksCmd)
	return cmd
}

// --- events ---

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event log (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := []string{}
			if name, _ := cmd.Flags().GetString("name"); name != "" {
				q = append(q, "name="+name)
			}
			if entity, _ := cmd.Flags().GetString("entity"); entity != "" {
				q = append(q, "entity="+entity)
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
				q = append(q, fmt.Sprintf("limit=%d", limit))
			}
			path := "/v1/sys/events"
			if len(q) > 0 {
				path += "?" + strings.Join(q, "&")
			}
			client := newClient()
			result, err := client.get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if items, ok := result["data"].([]any); ok {
				printList(items)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Filter by event name")
	cmd.Flags().String("entity", "", "Filter by entity id")
	cmd.Flags().Int("limit", 0, "Maximum number of events")
	return cmd
}

// --- fingerprint ---

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Compute a document's fingerprint and content id locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			cid, err := fingerprint.ContentID(data)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(map[string]any{
				"fingerprint": fingerprint.Sum(data),
				"content_id":  cid,
			})
			return nil
		},
	}
}
