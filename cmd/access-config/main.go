package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/classware/access"
	"github.com/classware/access/logger"
	"github.com/classware/access/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("access-config - Configuration tool for the access resolver")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  access-config convert <input> <output>  - Convert between formats")
	fmt.Println("  access-config validate <file>           - Validate configuration")
	fmt.Println("  access-config stats <file>              - Show configuration statistics")
	fmt.Println("  access-config apply <file>              - Apply configuration to an engine")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: access-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Users: %d\n", len(cfg.Users))
	fmt.Printf("  Subjects: %d\n", len(cfg.Subjects))
	fmt.Printf("  Library grants: %d\n", len(cfg.LibraryGrants))
	fmt.Printf("  School grants: %d\n", len(cfg.SchoolGrants))
	fmt.Printf("  Teacher grants: %d\n", len(cfg.TeacherGrants))
	fmt.Printf("  Teacher exclusions: %d\n", len(cfg.TeacherExclusions))
	fmt.Printf("  Subject exclusions: %d\n", len(cfg.SubjectExclusions))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Users:              %d\n", len(cfg.Users))
	fmt.Printf("  Subjects:           %d\n", len(cfg.Subjects))
	fmt.Printf("  Topics:             %d\n", len(cfg.Topics))
	fmt.Printf("  Videos:             %d\n", len(cfg.Videos))
	fmt.Printf("  Materials:          %d\n", len(cfg.Materials))
	fmt.Printf("  Assessments:        %d\n", len(cfg.Assessments))
	fmt.Printf("  Library grants:     %d\n", len(cfg.LibraryGrants))
	fmt.Printf("  School grants:      %d\n", len(cfg.SchoolGrants))
	fmt.Printf("  Teacher grants:     %d\n", len(cfg.TeacherGrants))
	fmt.Printf("  Teacher exclusions: %d\n", len(cfg.TeacherExclusions))
	fmt.Printf("  Subject exclusions: %d\n", len(cfg.SubjectExclusions))
	fmt.Println()

	if len(cfg.LibraryGrants) > 0 {
		activeCount := 0
		markerCount := 0
		for _, g := range cfg.LibraryGrants {
			if g.Active {
				activeCount++
			} else {
				markerCount++
			}
		}
		fmt.Println("Library Grant Details:")
		fmt.Printf("  Active grants:     %d\n", activeCount)
		fmt.Printf("  Exclusion markers: %d\n", markerCount)
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Audit buffer:        %d\n", cfg.Engine.AuditBuffer)
	fmt.Printf("  Catalog cache cost:  %d\n", cfg.Engine.CatalogCacheMaxCost)
	fmt.Printf("  Catalog cache TTL:   %dms\n", cfg.Engine.CatalogCacheTTLMs)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	catalog, err := stores.NewCachedCatalogStoreFromConfig(stores.NewMemoryCatalogStore(), cfg.Engine)
	if err != nil {
		fmt.Printf("Error creating catalog cache: %v\n", err)
		os.Exit(1)
	}
	defer catalog.Close()

	engine, err := access.NewEngine(
		stores.NewMemoryUserStore(),
		catalog,
		stores.NewMemoryLibraryGrantStore(),
		stores.NewMemorySchoolGrantStore(),
		stores.NewMemoryTeacherGrantStore(),
		stores.NewMemoryExclusionStore(),
		access.WithAuditStore(stores.NewMemoryAuditStore()),
		access.WithAuditBuffer(cfg.Engine.AuditBuffer),
		access.WithLogger(logger.NewSLogLogger(nil)),
	)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Users loaded: %d\n", len(cfg.Users))
	fmt.Printf("  Library grants loaded: %d\n", len(cfg.LibraryGrants))
	fmt.Printf("  School grants loaded: %d\n", len(cfg.SchoolGrants))
}

func loadConfig(filename string) (*access.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	loader := access.NewConfigLoader()

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", ext)
	}
}

func saveConfig(cfg *access.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error
	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
