package img

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/imagegen"
	"github.com/myrjola/casegen/internal/models"
	"github.com/spf13/cobra"
	"image/png"
	"log/slog"
	"os"
	"strings"
)

var Group = &cobra.Group{
	ID:    "img",
	Title: "Image operations",
}

// NewGenerateCommand returns the command that paints an evidence image with Dall-E.
func NewGenerateCommand(painter imagegen.Painter, lookupEnv func(string) (string, bool)) *cobra.Command {
	var (
		outPath   string
		graphPath string
		nodeID    string
	)
	cmd := &cobra.Command{
		Use:     "gen [prompt]",
		GroupID: Group.ID,
		Short:   "Generate image",
		Long: `Generates image with Dall-E. The prompt is either given as arguments or built from the node
--node of the graph in --graph the same way the server illustrates evidence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if graphPath != "" {
				var err error
				if prompt, err = nodePrompt(graphPath, nodeID); err != nil {
					return err
				}
			}
			if prompt == "" {
				return errors.New("prompt or --graph with --node is required")
			}

			credential, _ := lookupEnv("OPENAI_API_KEY")
			imgBytes, err := painter.Paint(cmd.Context(), prompt, credential)
			if err != nil {
				return errors.Wrap(err, "paint image")
			}
			if _, err = png.DecodeConfig(bytes.NewReader(imgBytes)); err != nil {
				return errors.Wrap(err, "decode png")
			}
			if err = os.WriteFile(outPath, imgBytes, 0o600); err != nil { //nolint:mnd // owner read/write.
				return errors.Wrap(err, "write image", slog.String("path", outPath))
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "The image was saved as %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "./out.png", "path to generated image file")
	cmd.Flags().StringVar(&graphPath, "graph", "", "graph or generate result JSON file to take the prompt from")
	cmd.Flags().StringVar(&nodeID, "node", "", "id of the node in --graph to illustrate")
	return cmd
}

func nodePrompt(graphPath, nodeID string) (string, error) {
	data, err := os.ReadFile(graphPath)
	if err != nil {
		return "", errors.Wrap(err, "read graph file", slog.String("path", graphPath))
	}
	var g models.Graph
	if err = json.Unmarshal(data, &g); err != nil {
		return "", errors.Wrap(err, "parse graph file", slog.String("path", graphPath))
	}
	for _, n := range g.Nodes {
		if n.ID == nodeID {
			return imagegen.Prompt(n), nil
		}
	}
	return "", errors.New("node not found", slog.String("node_id", nodeID))
}
