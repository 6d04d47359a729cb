package retriever

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cocodeai/cocode/pkg/models"
)

// PageRank tuning constants, matching the original implementation.
const (
	DefaultDamping      = 0.85
	DefaultMaxIterations = 100
	DefaultTolerance    = 1e-6

	chatFileEdgeWeight      = 50.0
	mentionedIdentWeight    = 10.0
	privateSymbolWeight     = 0.1
	multiDefinedPenalty     = 0.1
	multiDefinedThreshold   = 5
	highFrequencyThreshold  = 10
)

// graphEdge is one weighted reference->definition edge.
type graphEdge struct {
	to     string
	weight float64
	symbol string
}

// DependencyGraph is a directed graph of file-to-file symbol references,
// built from extracted Tags and consumed by PageRanker. Nodes are file
// paths; an edge from A to B means A references a symbol B defines.
type DependencyGraph struct {
	nodes       map[string]struct{}
	edges       map[string][]graphEdge
	definitions map[string][]tagLocation // symbol -> defining (file, line)
	references  map[string][]string      // symbol -> referencing files
}

type tagLocation struct {
	filePath string
	line     int
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:       make(map[string]struct{}),
		edges:       make(map[string][]graphEdge),
		definitions: make(map[string][]tagLocation),
		references:  make(map[string][]string),
	}
}

func (g *DependencyGraph) ensureNode(filePath string) {
	g.nodes[filePath] = struct{}{}
	if _, ok := g.edges[filePath]; !ok {
		g.edges[filePath] = nil
	}
}

// AddFileTags records a file's extracted tags, splitting them into
// definitions and references for later edge construction.
func (g *DependencyGraph) AddFileTags(filePath string, tags []models.Tag) {
	g.ensureNode(filePath)
	for _, tag := range tags {
		if tag.Kind == TagKindDef {
			g.definitions[tag.Name] = append(g.definitions[tag.Name], tagLocation{filePath: filePath, line: tag.Line})
		} else {
			g.references[tag.Name] = append(g.references[tag.Name], filePath)
		}
	}
}

// BuildEdges constructs weighted ref->def edges for every symbol that has
// both a definition and at least one reference, applying the five
// edge-weight rules: private-symbol penalty, mentioned-identifier boost,
// multi-defined (utility) dampening, high-frequency-reference dampening,
// and the chat-file edge multiplier.
func (g *DependencyGraph) BuildEdges(chatFiles, mentionedIdents map[string]struct{}) {
	for symbol, defFiles := range g.definitions {
		refFiles, ok := g.references[symbol]
		if !ok {
			continue
		}

		weight := 1.0
		if strings.HasPrefix(symbol, "_") {
			weight *= privateSymbolWeight
		}
		if _, mentioned := mentionedIdents[symbol]; mentioned {
			weight *= mentionedIdentWeight
		}
		if len(defFiles) > multiDefinedThreshold {
			weight *= multiDefinedPenalty
		}
		if len(refFiles) > highFrequencyThreshold {
			weight *= math.Sqrt(float64(highFrequencyThreshold) / float64(len(refFiles)))
		}

		for _, refFile := range refFiles {
			for _, def := range defFiles {
				if refFile == def.filePath {
					continue
				}
				edgeWeight := weight
				if _, inChat := chatFiles[refFile]; inChat {
					edgeWeight *= chatFileEdgeWeight
				}
				g.ensureNode(refFile)
				g.ensureNode(def.filePath)
				g.edges[refFile] = append(g.edges[refFile], graphEdge{to: def.filePath, weight: edgeWeight, symbol: symbol})
			}
		}
	}
}

// BuildPersonalization returns a PageRank personalization vector that
// gives chat files (files already in the model's context) chatFileEdgeWeight
// times the probability mass of every other file, normalized to sum to 1.
func (g *DependencyGraph) BuildPersonalization(chatFiles map[string]struct{}) map[string]float64 {
	personalization := make(map[string]float64, len(g.nodes))
	nodeCount := len(g.nodes)
	if nodeCount == 0 {
		return personalization
	}

	chatCount := 0
	for f := range g.nodes {
		if _, ok := chatFiles[f]; ok {
			chatCount++
		}
	}
	nonChatCount := nodeCount - chatCount

	var chatProb, nonChatProb float64
	switch {
	case chatCount > 0 && nonChatCount > 0:
		nonChatProb = 1.0 / (float64(chatCount)*chatFileEdgeWeight + float64(nonChatCount))
		chatProb = chatFileEdgeWeight * nonChatProb
	case chatCount > 0:
		chatProb = 1.0 / float64(chatCount)
	default:
		nonChatProb = 1.0 / float64(nodeCount)
	}

	for f := range g.nodes {
		if _, ok := chatFiles[f]; ok {
			personalization[f] = chatProb
		} else {
			personalization[f] = nonChatProb
		}
	}
	return personalization
}

// FileCount returns the number of distinct files (nodes) in the graph.
func (g *DependencyGraph) FileCount() int { return len(g.nodes) }

// EdgeCount returns the total number of weighted edges in the graph.
func (g *DependencyGraph) EdgeCount() int {
	n := 0
	for _, es := range g.edges {
		n += len(es)
	}
	return n
}

// PageRanker computes personalized PageRank over a DependencyGraph and
// distributes file-level rank down to individual symbol definitions.
type PageRanker struct {
	damping       float64
	maxIterations int
	tolerance     float64
}

// NewPageRanker builds a PageRanker with explicit tuning.
func NewPageRanker(damping float64, maxIterations int, tolerance float64) *PageRanker {
	return &PageRanker{damping: damping, maxIterations: maxIterations, tolerance: tolerance}
}

// DefaultPageRanker returns the ranker tuned the way the original repo
// map implementation is: damping 0.85, 100 iterations, 1e-6 tolerance.
func DefaultPageRanker() *PageRanker {
	return NewPageRanker(DefaultDamping, DefaultMaxIterations, DefaultTolerance)
}

// Rank runs power-iteration personalized PageRank over g, returning a
// map from file path to normalized rank (ranks sum to 1). An empty
// personalization vector falls back to the uniform distribution.
func (p *PageRanker) Rank(g *DependencyGraph, personalization map[string]float64) map[string]float64 {
	nodeCount := len(g.nodes)
	if nodeCount == 0 {
		return map[string]float64{}
	}

	initial := 1.0 / float64(nodeCount)
	ranks := make(map[string]float64, nodeCount)
	for f := range g.nodes {
		ranks[f] = initial
	}

	type incomingEdge struct {
		from   string
		weight float64
	}

	outWeights := make(map[string]float64, nodeCount)
	incoming := make(map[string][]incomingEdge) // def file -> edges referencing it
	for from, edges := range g.edges {
		var sum float64
		for _, e := range edges {
			sum += e.weight
			incoming[e.to] = append(incoming[e.to], incomingEdge{from: from, weight: e.weight})
		}
		outWeights[from] = sum
	}

	pers := personalization
	if len(pers) == 0 {
		pers = make(map[string]float64, nodeCount)
		for f := range g.nodes {
			pers[f] = initial
		}
	}

	for iter := 0; iter < p.maxIterations; iter++ {
		newRanks := make(map[string]float64, nodeCount)
		diff := 0.0

		for f := range g.nodes {
			var rankSum float64
			for _, e := range incoming[f] {
				sourceOut := outWeights[e.from]
				if sourceOut > 0 {
					rankSum += ranks[e.from] * (e.weight / sourceOut)
				}
			}

			persProb, ok := pers[f]
			if !ok {
				persProb = initial
			}
			newRank := (1-p.damping)*persProb + p.damping*rankSum
			diff += math.Abs(newRank - ranks[f])
			newRanks[f] = newRank
		}

		ranks = newRanks
		if diff < p.tolerance {
			break
		}
	}

	var total float64
	for _, r := range ranks {
		total += r
	}
	if total > 0 {
		for f := range ranks {
			ranks[f] /= total
		}
	}
	return ranks
}

// RankedSymbol is a symbol definition carrying its distributed PageRank
// weight, used to pick which symbols are worth rendering in the map.
type RankedSymbol struct {
	FilePath string
	Name     string
	Line     int
	Rank     float64
}

// DistributeToDefinitions spreads each file's rank equally across its own
// symbol definitions (so a file with five definitions gives each 1/5 of
// its file rank) and returns them sorted by rank descending.
func (p *PageRanker) DistributeToDefinitions(g *DependencyGraph, fileRanks map[string]float64) []RankedSymbol {
	var ranked []RankedSymbol
	for symbol, locations := range g.definitions {
		defsInFile := make(map[string]int)
		for _, loc := range locations {
			defsInFile[loc.filePath]++
		}
		for _, loc := range locations {
			fileRank := fileRanks[loc.filePath]
			symbolRank := fileRank / float64(maxInt(defsInFile[loc.filePath], 1))
			ranked = append(ranked, RankedSymbol{
				FilePath: loc.filePath,
				Name:     symbol,
				Line:     loc.line,
				Rank:     symbolRank,
			})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank > ranked[j].Rank })
	return ranked
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RenderRepoMap renders the top-ranked symbols into a token-budgeted,
// file-grouped tree. tokenBudget is an approximate character budget
// (at ~4 characters per token) rather than an exact tokenizer count.
func RenderRepoMap(ranked []RankedSymbol, tokenBudget int) string {
	if tokenBudget <= 0 {
		tokenBudget = 1024
	}
	charBudget := tokenBudget * 4

	byFile := make(map[string][]RankedSymbol)
	var fileOrder []string
	for _, sym := range ranked {
		if _, seen := byFile[sym.FilePath]; !seen {
			fileOrder = append(fileOrder, sym.FilePath)
		}
		byFile[sym.FilePath] = append(byFile[sym.FilePath], sym)
	}

	var b strings.Builder
	for _, file := range fileOrder {
		section := fmt.Sprintf("%s:\n", file)
		for _, sym := range byFile[file] {
			section += fmt.Sprintf("  %s:%d\n", sym.Name, sym.Line)
		}
		if b.Len()+len(section) > charBudget {
			break
		}
		b.WriteString(section)
	}
	return b.String()
}
