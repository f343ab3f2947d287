// Package imagegen illustrates the evidence nodes of a generated case.
//
// Images are requested in small batches with a pause in between to stay under provider rate limits. A failed image
// never fails the case; the node is simply left without one.
package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/models"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultBatchSize  = 3
	DefaultBatchDelay = 2 * time.Second
)

// Node data keys of an illustrated evidence node. The object key is persisted, the URL is resolved on read.
const (
	ImageKeyKey = "imageKey"
	ImageURLKey = "imageUrl"
)

// Painter creates an image for a prompt.
type Painter interface {
	Paint(ctx context.Context, prompt, credential string) ([]byte, error)
}

// DallE paints with the OpenAI image API.
type DallE struct{}

func (DallE) Paint(ctx context.Context, prompt, credential string) ([]byte, error) {
	client := openai.NewClient(credential)
	response, err := client.CreateImage(ctx, openai.ImageRequest{ //nolint:exhaustruct // this is better for readability
		Model:          openai.CreateImageModelDallE3,
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	if len(response.Data) == 0 {
		return nil, errors.New("image response is empty")
	}
	img, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

type Generator struct {
	logger     *slog.Logger
	painter    Painter
	store      Store
	BatchSize  int
	BatchDelay time.Duration
}

func NewGenerator(logger *slog.Logger, painter Painter, store Store) *Generator {
	return &Generator{
		logger:     logger.With(slog.String("source", "ImageGenerator")),
		painter:    painter,
		store:      store,
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
	}
}

// Prompt describes the picture of an evidence node.
func Prompt(node models.NarrativeNode) string {
	label, _ := node.Data["label"].(string)
	description, _ := node.Data["description"].(string)
	return fmt.Sprintf("A realistic photograph of a piece of evidence in a workplace investigation: %s. %s "+
		"No text or lettering in the image.", label, description)
}

// BatchGenerate paints the evidence nodes among nodes and returns the object key of every node that got an image.
// Other node types are ignored. The simulation credential produces no images.
func (g *Generator) BatchGenerate(
	ctx context.Context,
	nodes []models.NarrativeNode,
	caseID string,
	credential string,
) map[string]string {
	keys := make(map[string]string)
	if (ai.Request{Credential: credential}).Simulated() {
		return keys
	}

	var evidence []models.NarrativeNode
	for _, n := range nodes {
		if n.Type == models.NodeEvidence {
			evidence = append(evidence, n)
		}
	}
	size := max(g.BatchSize, 1)

	var mu sync.Mutex
	for start := 0; start < len(evidence); start += size {
		if start > 0 && g.BatchDelay > 0 {
			select {
			case <-time.After(g.BatchDelay):
			case <-ctx.Done():
				return keys
			}
		}
		batch := evidence[start:min(start+size, len(evidence))]

		var eg errgroup.Group
		eg.SetLimit(size)
		for _, node := range batch {
			eg.Go(func() error {
				key, err := g.illustrate(ctx, node, caseID, credential)
				if err != nil {
					g.logger.LogAttrs(ctx, slog.LevelWarn, "image generation failed",
						slog.String("node_id", node.ID), errors.SlogError(err))
					return nil
				}
				mu.Lock()
				keys[node.ID] = key
				mu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()
	}
	g.logger.LogAttrs(ctx, slog.LevelInfo, "images generated",
		slog.String("case_id", caseID), slog.Int("evidence", len(evidence)), slog.Int("images", len(keys)))
	return keys
}

// ObjectKey is the store key of the image of node nodeID in case caseID.
func ObjectKey(caseID, nodeID string) string {
	return fmt.Sprintf("cases/%s/%s.png", caseID, nodeID)
}

func (g *Generator) illustrate(ctx context.Context, node models.NarrativeNode, caseID, credential string) (string, error) {
	img, err := g.painter.Paint(ctx, Prompt(node), credential)
	if err != nil {
		return "", err
	}
	key := ObjectKey(caseID, node.ID)
	if err = g.store.Put(ctx, key, img, "image/png"); err != nil {
		return "", err
	}
	return key, nil
}

// Apply returns a copy of nodes with the image object keys set on their data.
func Apply(nodes []models.NarrativeNode, keys map[string]string) []models.NarrativeNode {
	return withData(nodes, func(n models.NarrativeNode) (string, any, bool) {
		key, ok := keys[n.ID]
		return ImageKeyKey, key, ok
	})
}

// ResolveURLs returns a copy of nodes where every node with an image object key also carries a fresh image URL.
// A node whose URL cannot be resolved is returned without one.
func (g *Generator) ResolveURLs(ctx context.Context, nodes []models.NarrativeNode) []models.NarrativeNode {
	return withData(nodes, func(n models.NarrativeNode) (string, any, bool) {
		key, ok := n.Data[ImageKeyKey].(string)
		if !ok || key == "" {
			return "", nil, false
		}
		url, err := g.store.URL(ctx, key)
		if err != nil {
			g.logger.LogAttrs(ctx, slog.LevelWarn, "failed to resolve image URL",
				slog.String("node_id", n.ID), errors.SlogError(err))
			return "", nil, false
		}
		return ImageURLKey, url, true
	})
}

// withData copies nodes and sets the attribute returned by attr on the nodes it reports ok for. The data maps of
// the input are never modified.
func withData(
	nodes []models.NarrativeNode,
	attr func(models.NarrativeNode) (string, any, bool),
) []models.NarrativeNode {
	out := make([]models.NarrativeNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
		key, value, ok := attr(n)
		if !ok {
			continue
		}
		data := make(map[string]any, len(n.Data)+1)
		for k, v := range n.Data {
			data[k] = v
		}
		data[key] = value
		out[i].Data = data
	}
	return out
}
