package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/lexlapax/agentdb/pkg/agentdb"
	"github.com/lexlapax/agentdb/pkg/config"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/memory"
	"github.com/lexlapax/agentdb/pkg/state"
)

// Constants for the command-line interface
const (
	cmdHelp     = "!help"
	cmdQuit     = "!quit"
	cmdAgent    = "!agent"
	cmdSave     = "!save"
	cmdLoad     = "!load"
	cmdUpdate   = "!update"
	cmdSnapshot = "!snapshot"
	cmdRestore  = "!restore"
	cmdRemember = "!remember"
	cmdRecall   = "!recall"
	cmdLookup   = "!lookup"
	cmdSearch   = "!search"
	cmdOrganize = "!organize"
	cmdStats    = "!stats"
)

// Command-line help text
const helpText = `
AgentDB Client - Command Reference:
-----------------------------------------
!help                 - Show this help message
!agent <id>           - Set the current agent ID
!save <text>          - Save agent state (replaces any previous state)
!load                 - Load and display the current agent state
!update <text>        - Update agent state data (bumps version)
!snapshot <name>      - Create a named snapshot of the agent state
!restore <name>       - Display a previously created snapshot
!remember <type> <text> - Store a memory (type: episodic|semantic|procedural|working)
!recall               - Show the agent's top-ranked memories
!lookup <query>       - Retrieve memories matching query by keyword
!search <query>       - Retrieve memories using semantic (vector) search
!organize             - Run the memory consolidation pass
!stats                - Show memory statistics for the agent
!quit                 - Exit the application

Notes:
- Tab completion is available for commands
- Use up/down arrows for command history
- Semantic search requires an embedding provider in the config`

// historyFile is the file where command history is stored
const historyFile = ".agentdb_history"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load .env so OPENAI_API_KEY and friends are available to the config
	// layer; absence of the file is fine.
	_ = godotenv.Load()

	log.Setup(log.Config{
		Level:  log.InfoLevel,
		Format: log.TextFormat,
	})

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	client, err := agentdb.NewFromConfig(context.Background(), cfg)
	if err != nil {
		log.Error("Failed to initialize agentdb client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	runCLI(client, cfg)
}

// runCLI starts the command-line interface for user interaction
func runCLI(client *agentdb.Client, cfg *config.Config) {
	currentAgent := uint64(1)
	currentSession := uint64(1)

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)

	line.SetCompleter(func(line string) (c []string) {
		commands := []string{
			cmdHelp, cmdQuit, cmdAgent, cmdSave, cmdLoad, cmdUpdate,
			cmdSnapshot, cmdRestore, cmdRemember, cmdRecall, cmdLookup,
			cmdSearch, cmdOrganize, cmdStats,
		}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return
	})

	// Load history from file if it exists
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	// Save history when exiting
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("\n=== AgentDB Client ===")
	fmt.Println("Storage:", cfg.Storage.Type)
	fmt.Println("Vector Backend:", cfg.Vector.Backend)
	fmt.Println("Embedding Provider:", displayProvider(cfg.Embedding.Provider))
	fmt.Printf("Current Agent: %d\n", currentAgent)
	fmt.Println("Type !help for available commands.")

	for {
		prompt := fmt.Sprintf("agentdb::%d> ", currentAgent)
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == cmdQuit {
			fmt.Println("Goodbye!")
			break
		}

		processCommand(input, client, &currentAgent, currentSession)
	}
}

func displayProvider(provider string) string {
	if provider == "" {
		return "(none)"
	}
	return provider
}

// processCommand handles a single command line.
func processCommand(input string, client *agentdb.Client, currentAgent *uint64, session uint64) {
	ctx := context.Background()
	parts := strings.SplitN(input, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case cmdHelp:
		fmt.Println(helpText)

	case cmdAgent:
		if arg == "" {
			fmt.Printf("Current agent: %d\n", *currentAgent)
			return
		}
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || id == 0 {
			fmt.Println("Agent ID must be a positive integer")
			return
		}
		*currentAgent = id
		fmt.Printf("Agent set to: %d\n", id)

	case cmdSave:
		if arg == "" {
			fmt.Println("State data required")
			return
		}
		st, err := client.SaveState(ctx, *currentAgent, session, state.WorkingMemory, []byte(arg))
		if err != nil {
			fmt.Printf("Error saving state: %v\n", err)
			return
		}
		fmt.Printf("State saved (version %d, checksum %d)\n", st.Version, st.Checksum)

	case cmdLoad:
		st, err := client.LoadState(ctx, *currentAgent)
		if err != nil {
			fmt.Printf("Error loading state: %v\n", err)
			return
		}
		if st == nil {
			fmt.Println("No state saved for this agent.")
			return
		}
		printState(st)

	case cmdUpdate:
		if arg == "" {
			fmt.Println("State data required")
			return
		}
		st, err := client.UpdateState(ctx, *currentAgent, []byte(arg))
		if err != nil {
			fmt.Printf("Error updating state: %v\n", err)
			return
		}
		fmt.Printf("State updated (version %d)\n", st.Version)

	case cmdSnapshot:
		if arg == "" {
			fmt.Println("Snapshot name required")
			return
		}
		snap, err := client.CreateSnapshot(ctx, *currentAgent, arg)
		if err != nil {
			fmt.Printf("Error creating snapshot: %v\n", err)
			return
		}
		fmt.Printf("Snapshot %q created (version %d)\n", arg, snap.Version)

	case cmdRestore:
		if arg == "" {
			fmt.Println("Snapshot name required")
			return
		}
		snap, err := client.LoadSnapshot(ctx, *currentAgent, arg)
		if err != nil {
			fmt.Printf("Error loading snapshot: %v\n", err)
			return
		}
		if snap == nil {
			fmt.Printf("No snapshot named %q for this agent.\n", arg)
			return
		}
		printState(snap)

	case cmdRemember:
		typeAndText := strings.SplitN(arg, " ", 2)
		if len(typeAndText) != 2 {
			fmt.Println("Usage: !remember <type> <text>")
			return
		}
		memType, ok := memory.ParseMemoryType(typeAndText[0])
		if !ok {
			fmt.Printf("Unknown memory type %q (episodic|semantic|procedural|working)\n", typeAndText[0])
			return
		}
		id, err := client.Remember(ctx, *currentAgent, memType, typeAndText[1], agentdb.RememberOptions{
			Importance: 0.5,
		})
		if err != nil {
			fmt.Printf("Error storing memory: %v\n", err)
			return
		}
		fmt.Printf("Memory stored with ID: %s\n", id)

	case cmdRecall:
		memories, err := client.Recall(ctx, *currentAgent, 10)
		if err != nil {
			fmt.Printf("Error recalling memories: %v\n", err)
			return
		}
		printMemories(memories)

	case cmdLookup:
		if arg == "" {
			fmt.Println("Lookup query required")
			return
		}
		memories, err := client.SearchKeyword(ctx, *currentAgent, arg, 10)
		if err != nil {
			fmt.Printf("Error looking up memories: %v\n", err)
			return
		}
		printMemories(memories)

	case cmdSearch:
		if arg == "" {
			fmt.Println("Search query required")
			return
		}
		fmt.Println("Performing semantic search...")
		memories, err := client.RecallSemantic(ctx, *currentAgent, arg, 10)
		if err != nil {
			fmt.Printf("Error in semantic search: %v\n", err)
			return
		}
		printMemories(memories)

	case cmdOrganize:
		removed, err := client.Organize(ctx, *currentAgent)
		if err != nil {
			fmt.Printf("Error organizing memories: %v\n", err)
			return
		}
		fmt.Printf("Consolidation removed %d memories\n", removed)

	case cmdStats:
		stats, err := client.MemoryStats(ctx, *currentAgent)
		if err != nil {
			fmt.Printf("Error fetching stats: %v\n", err)
			return
		}
		fmt.Printf("Total memories: %d\n", stats.TotalCount)
		for memType, count := range stats.TypeCounts {
			fmt.Printf("  %s: %d\n", memType, count)
		}
		fmt.Printf("Average importance: %.3f\n", stats.AvgImportance)
		fmt.Printf("Average access count: %.2f\n", stats.AvgAccessCount)
		fmt.Printf("Total content size: %d bytes\n", stats.TotalSizeBytes)

	default:
		fmt.Printf("Unknown command: %s\nType !help for available commands.\n", cmd)
	}
}

func printState(st *state.AgentState) {
	fmt.Printf("Agent: %d | Session: %d | Type: %s\n", st.AgentID, st.SessionID, st.StateType)
	fmt.Printf("Version: %d | Checksum: %d | Compressed: %v\n", st.Version, st.Checksum, st.Compressed)
	fmt.Printf("Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Data: %s\n", string(st.Data))
}

func printMemories(memories []*memory.Memory) {
	if len(memories) == 0 {
		fmt.Println("No memories found.")
		return
	}
	fmt.Printf("Found %d memories:\n\n", len(memories))
	for i, mem := range memories {
		fmt.Printf("Memory %d [%s, importance %.2f]: %s\n", i+1, mem.Type, mem.Importance, mem.Content)
	}
}
