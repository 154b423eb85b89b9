package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// HandleConfigCommand implements the `config` subcommand tree. It always
// terminates the process.
func HandleConfigCommand(logger *zap.SugaredLogger) {
	if len(os.Args) < 3 {
		printConfigHelp()
		os.Exit(1)
	}

	ApplyRegistryDefaults()
	switch os.Args[2] {
	case "show":
		InitSettings(logger)
		printConfigTable()
	case "dump":
		printEffectiveJSON()
	case "env":
		printEnvMapping()
	case "get":
		printOneKey(os.Args[3:])
	case "init":
		printStarterFile()
	default:
		fmt.Println("Unknown config command:", os.Args[2])
		printConfigHelp()
		os.Exit(1)
	}
	os.Exit(0)
}

func printConfigTable() {
	fmt.Printf("%-35s %-35s %-20s %s\n", "JSON KEY", "ENV VAR", "CURRENT", "DESCRIPTION")
	for _, c := range Registry {
		current := viper.Get(c.Key)
		marker := " "
		if fmt.Sprint(current) != fmt.Sprint(c.Default) {
			marker = "*"
		}
		fmt.Printf("%-35s %-35s %-19v%s %s\n", c.Key, EnvVar(c.Key), current, marker, c.Description)
	}
	fmt.Println("\n* differs from the default")
}

func printEffectiveJSON() {
	out, err := json.MarshalIndent(viper.AllSettings(), "", "  ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(string(out))
}

func printEnvMapping() {
	names := make([]string, 0, len(Registry))
	byEnv := make(map[string]string, len(Registry))
	for _, c := range Registry {
		name := EnvVar(c.Key)
		names = append(names, name)
		byEnv[name] = c.Key
	}
	sort.Strings(names)

	fmt.Printf("%-35s %s\n", "ENV VAR", "JSON KEY")
	for _, name := range names {
		fmt.Printf("%-35s %s\n", name, byEnv[name])
	}
}

func printOneKey(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: vellum config get <json-key>")
		return
	}
	for _, c := range Registry {
		if c.Key == args[0] {
			fmt.Println(viper.Get(c.Key))
			return
		}
	}
	fmt.Println("Unknown config key:", args[0])
}

// printStarterFile emits a settings.json template with every default filled
// in, nested the way the file is expected to be written.
func printStarterFile() {
	root := map[string]any{}
	for _, c := range Registry {
		if c.Default == nil {
			continue
		}
		node := root
		parts := strings.Split(c.Key, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = c.Default
	}

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(string(out))
}

func printConfigHelp() {
	fmt.Println(`Usage:
  vellum config show          annotated table of every key
  vellum config dump          effective settings as JSON
  vellum config env           environment variable mapping
  vellum config get <key>     one effective value
  vellum config init          starter settings.json with defaults`)
}
