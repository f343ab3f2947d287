// Package cases holds the commands that generate and check cases.
package cases

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/envstruct"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/graph"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"io"
	"log/slog"
	"os"
	"time"
)

var Group = &cobra.Group{
	ID:    "case",
	Title: "Case operations",
}

// aiConfig is read from the environment like the web server does.
type aiConfig struct {
	OpenAIModel    string        `env:"CASEGEN_OPENAI_MODEL"    envDefault:"gpt-4-turbo-preview"`
	GeminiModel    string        `env:"CASEGEN_GEMINI_MODEL"    envDefault:"gemini-2.0-flash"`
	AnthropicModel string        `env:"CASEGEN_ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-latest"`
	MaxTokens      int           `env:"CASEGEN_MAX_TOKENS"      envDefault:"8192"`
	Timeout        time.Duration `env:"CASEGEN_AI_TIMEOUT"      envDefault:"3m"`
	Provider       string        `env:"CASEGEN_PROVIDER"        envDefault:"openai"`
	Credential     string        `env:"CASEGEN_CREDENTIAL"      envDefault:"simulation"`
}

// NewGenerateCommand returns the command that runs a generation and writes the result as JSON.
//
// lookupEnv has the same signature as [os.LookupEnv].
func NewGenerateCommand(lookupEnv func(string) (string, bool)) *cobra.Command {
	var (
		configPath string
		outPath    string
		provider   string
		credential string
		verbose    bool
		cfg        models.GenerationConfig
		objectives []string
		difficulty string
		mode       string
	)
	cmd := &cobra.Command{
		Use:     "generate",
		GroupID: Group.ID,
		Short:   "Generate a case",
		Long: `Generates a case from a YAML config file and/or flags. Flags override the file.
The result is written as JSON. Use the credential "simulation" to generate offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var env aiConfig
			if err := envstruct.Populate(&env, lookupEnv); err != nil {
				return errors.Wrap(err, "read environment")
			}

			genCfg := cfg
			if configPath != "" {
				fileCfg, err := readConfigFile(configPath)
				if err != nil {
					return err
				}
				genCfg = mergeFlags(cmd, fileCfg, cfg)
			}
			if cmd.Flags().Changed("mode") || configPath == "" {
				genCfg.Mode = models.GenerationMode(mode)
			}
			if cmd.Flags().Changed("difficulty") {
				genCfg.Difficulty = models.Difficulty(difficulty)
			}
			if cmd.Flags().Changed("objective") {
				genCfg.LearningObjectives = objectives
			}
			if !cmd.Flags().Changed("provider") {
				provider = env.Provider
			}
			if !cmd.Flags().Changed("credential") {
				credential = env.Credential
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := logging.NewLogger(cmd.ErrOrStderr(), level, false)
			client := ai.NewClient(logger, ai.Config{
				OpenAIModel:    env.OpenAIModel,
				GeminiModel:    env.GeminiModel,
				AnthropicModel: env.AnthropicModel,
				MaxTokens:      env.MaxTokens,
				Timeout:        env.Timeout,
			})
			orchestrator := generation.NewOrchestrator(logger, client,
				generation.Config{Provider: ai.Provider(provider), Credential: credential})

			stderr := cmd.ErrOrStderr()
			result, err := orchestrator.Run(cmd.Context(), genCfg, generation.Options{
				OnProgress: func(p generation.Progress) {
					_, _ = fmt.Fprintf(stderr, "%3d%% %s\n", p.Percent, p.Stage)
				},
			})
			if err != nil {
				logger.LogAttrs(cmd.Context(), slog.LevelDebug, "generation failed", errors.SlogError(err))
				return errors.New(generation.UserMessage(err))
			}
			return writeResult(cmd.OutOrStdout(), outPath, result)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML file with the generation config")
	flags.StringVar(&outPath, "out", "-", `output file, "-" for stdout`)
	flags.StringVar(&provider, "provider", "", "generation provider: openai, gemini or anthropic")
	flags.StringVar(&credential, "credential", "", `API key of the provider, "simulation" to generate offline`)
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every generation call")
	flags.StringVar(&mode, "mode", string(models.ModeMultiPhase), "generation mode: freeform, structured or multiphase")
	flags.StringVar(&cfg.Story, "story", "", "story of a freeform case")
	flags.StringSliceVar(&objectives, "objective", nil, "learning objective, repeatable")
	flags.StringVar(&cfg.Industry, "industry", "", "industry of the case")
	flags.StringVar(&cfg.Topic, "topic", "", "topic of the case")
	flags.StringVar(&cfg.Location, "location", "", "location of the case")
	flags.StringVar(&cfg.Date, "date", "", "date of the case")
	flags.StringVar(&difficulty, "difficulty", "", "difficulty: easy, medium or hard")
	flags.IntVar(&cfg.SuspectCount, "suspects", 3, "number of suspects") //nolint:mnd // the smallest interesting case.
	flags.BoolVar(&cfg.Diversity.GenderBalance, "gender-balance", false, "balance the genders of the suspects")
	flags.BoolVar(&cfg.Diversity.EthnicDiversity, "ethnic-diversity", false, "vary the ethnicity of the suspects")
	flags.BoolVar(&cfg.Diversity.AgeRange, "age-range", false, "vary the age of the suspects")
	return cmd
}

func readConfigFile(path string) (models.GenerationConfig, error) {
	var cfg models.GenerationConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file", slog.String("path", path))
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file", slog.String("path", path))
	}
	return cfg, nil
}

// mergeFlags overrides the fields of fileCfg whose flags were set explicitly.
func mergeFlags(cmd *cobra.Command, fileCfg, flagCfg models.GenerationConfig) models.GenerationConfig {
	changed := cmd.Flags().Changed
	if changed("story") {
		fileCfg.Story = flagCfg.Story
	}
	if changed("industry") {
		fileCfg.Industry = flagCfg.Industry
	}
	if changed("topic") {
		fileCfg.Topic = flagCfg.Topic
	}
	if changed("location") {
		fileCfg.Location = flagCfg.Location
	}
	if changed("date") {
		fileCfg.Date = flagCfg.Date
	}
	if changed("suspects") {
		fileCfg.SuspectCount = flagCfg.SuspectCount
	}
	if changed("gender-balance") {
		fileCfg.Diversity.GenderBalance = flagCfg.Diversity.GenderBalance
	}
	if changed("ethnic-diversity") {
		fileCfg.Diversity.EthnicDiversity = flagCfg.Diversity.EthnicDiversity
	}
	if changed("age-range") {
		fileCfg.Diversity.AgeRange = flagCfg.Diversity.AgeRange
	}
	return fileCfg
}

func writeResult(stdout io.Writer, outPath string, result generation.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	data = append(data, '\n')
	if outPath == "-" {
		if _, err = stdout.Write(data); err != nil {
			return errors.Wrap(err, "write result")
		}
		return nil
	}
	if err = os.WriteFile(outPath, data, 0o600); err != nil { //nolint:mnd // owner read/write.
		return errors.Wrap(err, "write result file", slog.String("path", outPath))
	}
	return nil
}

// NewValidateCommand returns the command that checks a graph file against the structural invariants.
func NewValidateCommand() *cobra.Command {
	var (
		startID    string
		sequential bool
	)
	cmd := &cobra.Command{
		Use:     "validate [graph.json]",
		GroupID: Group.ID,
		Short:   "Check a case graph",
		Long: `Checks that a graph (or a generate result) has a start node, unique ids, no dangling edges,
correctly named branch handles and reachable suspects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read graph file", slog.String("path", args[0]))
			}
			var g models.Graph
			if err = json.Unmarshal(data, &g); err != nil {
				return errors.Wrap(err, "parse graph file", slog.String("path", args[0]))
			}
			violations := graph.Check(g, graph.CheckOptions{StartID: startID, SequentialSuspects: sequential})
			out := cmd.OutOrStdout()
			for _, v := range violations {
				_, _ = fmt.Fprintln(out, v.String())
			}
			if len(violations) > 0 {
				return errors.New(fmt.Sprintf("%d violations", len(violations)))
			}
			_, _ = fmt.Fprintf(out, "ok: %d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
			return nil
		},
	}
	cmd.Flags().StringVar(&startID, "start", graph.StartID, "id of the start node")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "require suspects to unlock one after another")
	return cmd
}

