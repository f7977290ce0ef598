package routing

import (
	"fmt"
	"strings"

	"github.com/goblinos/overmind/utils/array"
)

// Intent classifies what a request is trying to do, driving local model
// selection.
type Intent string

const (
	IntentSummarize      Intent = "summarize"
	IntentExplain        Intent = "explain"
	IntentCodeGen        Intent = "code-gen"
	IntentCreative       Intent = "creative"
	IntentRetrieval      Intent = "retrieval"
	IntentRAG            Intent = "rag"
	IntentChat           Intent = "chat"
	IntentClassification Intent = "classification"
	IntentStatus         Intent = "status"
	IntentMicroOp        Intent = "microop"
	IntentLegal          Intent = "legal"
	IntentTranslation    Intent = "translation"
)

// Message is a single chat turn, the minimal shape intent detection needs.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Local model IDs served by the self-hosted Ollama deployment.
const (
	ModelMistral7B     = "mistral:7b"
	ModelQwen3B        = "qwen2.5:3b"
	ModelPhi3          = "phi3:3.8b"
	ModelGemma2B       = "gemma:2b"
	ModelCheapFallback = "goblin-simple-llama-1b"
)

// ModelParams are the generation settings paired with a selected model.
type ModelParams struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
}

type localModel struct {
	contextWindow int
	params        ModelParams
}

var localModels = map[string]localModel{
	ModelMistral7B: {
		contextWindow: 8192,
		params:        ModelParams{Temperature: 0.2, TopP: 0.95, MaxTokens: 512, Stop: []string{"\n\n"}},
	},
	ModelQwen3B: {
		contextWindow: 32768,
		params:        ModelParams{Temperature: 0.0, TopP: 0.9, MaxTokens: 1024},
	},
	ModelPhi3: {
		contextWindow: 4096,
		params:        ModelParams{Temperature: 0.15, TopP: 0.9, MaxTokens: 128},
	},
	ModelGemma2B: {
		contextWindow: 8192,
		params:        ModelParams{Temperature: 0.0, TopP: 0.9, MaxTokens: 40},
	},
	ModelCheapFallback: {
		contextWindow: 2048,
		params:        ModelParams{Temperature: 0.1, TopP: 0.9, MaxTokens: 128},
	},
}

var systemPrompts = map[string]string{
	"default": "You are a concise, accurate assistant. Use numbered steps for procedures. " +
		"If unsure, say 'I don't know — check sources.' " +
		"Do not invent facts; if information depends on external sources label it.",
	"creative": "You are a creative and imaginative assistant. Be expressive while remaining helpful. " +
		"Do not invent facts; if information depends on external sources label it.",
	"code": "You are a precise coding assistant. Provide clean, working code with brief explanations. " +
		"Use best practices and include error handling. " +
		"Do not invent facts; if information depends on external sources label it.",
	"rag": "You are a retrieval assistant. Answer based strictly on provided context. " +
		"If the answer is not in the context, say 'This information is not available in the provided context.' " +
		"Do not invent facts; cite sources when available.",
	"classification": "You are a classification assistant. Provide only the requested classification without explanation. " +
		"Be precise and consistent.",
}

// EstimateTokens approximates the token count of a text. One token is
// roughly four characters of English.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ContextTokens sums the estimated tokens across all messages.
func ContextTokens(messages []Message) int {
	total := 0
	for _, message := range messages {
		total += EstimateTokens(message.Content)
	}
	return total
}

// DetectIntent classifies the last message by keywords. Unmatched text is
// plain chat.
func DetectIntent(messages []Message) Intent {
	if len(messages) == 0 {
		return IntentChat
	}
	text := strings.ToLower(messages[len(messages)-1].Content)

	containsAny := func(keywords ...string) bool {
		_, found := array.Find(keywords, func(keyword string) bool {
			return strings.Contains(text, keyword)
		})
		return found
	}

	switch {
	case containsAny("summarize", "summary", "tldr", "sum up"):
		return IntentSummarize
	case containsAny("explain", "what is", "what does", "how does"):
		return IntentExplain
	case containsAny("code", "function", "class", "implement", "script"):
		return IntentCodeGen
	case containsAny("story", "poem", "creative", "imagine"):
		return IntentCreative
	case containsAny("translate", "translation", "say in"):
		return IntentTranslation
	case containsAny("classify", "category", "label"):
		return IntentClassification
	case containsAny("status", "health", "check"):
		return IntentStatus
	}
	return IntentChat
}

// detectLanguage flags text as non-English when over 30% of its bytes are
// outside ASCII. A heuristic, good enough to steer multilingual requests
// to the model that handles them.
func detectLanguage(text string) string {
	nonASCII := 0
	for i := 0; i < len(text); i++ {
		if text[i] > 127 {
			nonASCII++
		}
	}
	if len(text) > 0 && nonASCII*10 > len(text)*3 {
		return "non-en"
	}
	return "en"
}

// ModelChoice is a local model selection with everything the caller needs
// to issue the request.
type ModelChoice struct {
	Model        string      `json:"model"`
	Params       ModelParams `json:"params"`
	Intent       Intent      `json:"intent"`
	SystemPrompt string      `json:"system_prompt"`
	Explanation  string      `json:"explanation"`
}

// SelectLocalModel picks the local model for a request. Rules run in
// priority order: cheap fallback beats everything, then micro tasks, long
// or multilingual context, latency-sensitive chat, quality-heavy intents,
// and finally the default.
func SelectLocalModel(messages []Message, requirements *Requirements) ModelChoice {
	forceCheap := requirements != nil && requirements.FallbackMode
	if forceCheap {
		return ModelChoice{
			Model:        ModelCheapFallback,
			Params:       localModels[ModelCheapFallback].params,
			Intent:       IntentChat,
			SystemPrompt: systemPrompts["default"],
			Explanation:  "Cheap fallback model forced by load shedding",
		}
	}

	intent := Intent("")
	if requirements != nil && requirements.Intent != "" {
		intent = Intent(requirements.Intent)
	} else {
		intent = DetectIntent(messages)
	}

	contextLength := ContextTokens(messages)
	latencyPriority := ""
	costPriority := false
	if requirements != nil {
		contextLength += EstimateTokens(requirements.Context)
		latencyPriority = requirements.LatencyPriority
		costPriority = requirements.CostPriority
	}

	language := "en"
	if len(messages) > 0 {
		language = detectLanguage(messages[len(messages)-1].Content)
	}

	var model string
	switch {
	case latencyPriority == PriorityUltraLow ||
		intent == IntentClassification || intent == IntentStatus || intent == IntentMicroOp ||
		(costPriority && contextLength < 100):
		model = ModelGemma2B
	case contextLength > 8000 || language != "en" ||
		intent == IntentRAG || intent == IntentRetrieval || intent == IntentTranslation:
		model = ModelQwen3B
	case latencyPriority == PriorityLow || (intent == IntentChat && contextLength < 2000):
		model = ModelPhi3
	case intent == IntentSummarize || intent == IntentExplain ||
		intent == IntentCodeGen || intent == IntentCreative || intent == IntentLegal:
		model = ModelMistral7B
	default:
		model = ModelPhi3
	}

	params := localModels[model].params
	switch model {
	case ModelQwen3B:
		if intent == IntentRAG || intent == IntentRetrieval {
			params.Temperature = 0.0
		} else {
			params.Temperature = 0.3
		}
	case ModelMistral7B:
		switch intent {
		case IntentCodeGen:
			params.Temperature = 0.0
		case IntentCreative:
			params.Temperature = 0.6
		default:
			params.Temperature = 0.2
		}
	}

	return ModelChoice{
		Model:        model,
		Params:       params,
		Intent:       intent,
		SystemPrompt: systemPromptFor(intent),
		Explanation:  routingExplanation(model, intent, contextLength, latencyPriority),
	}
}

func systemPromptFor(intent Intent) string {
	switch intent {
	case IntentCodeGen:
		return systemPrompts["code"]
	case IntentCreative:
		return systemPrompts["creative"]
	case IntentRAG, IntentRetrieval:
		return systemPrompts["rag"]
	case IntentClassification, IntentStatus:
		return systemPrompts["classification"]
	}
	return systemPrompts["default"]
}

func routingExplanation(model string, intent Intent, contextLength int, latencyPriority string) string {
	var reasons []string
	switch model {
	case ModelGemma2B:
		if intent == IntentClassification || intent == IntentStatus || intent == IntentMicroOp {
			reasons = append(reasons, fmt.Sprintf("Intent: %s (micro task)", intent))
		}
		if latencyPriority == PriorityUltraLow {
			reasons = append(reasons, "Ultra-low latency required")
		}
		reasons = append(reasons, "Optimized for: ultra-fast responses, classification, status checks")
	case ModelPhi3:
		if latencyPriority == PriorityLow || latencyPriority == PriorityUltraLow {
			reasons = append(reasons, fmt.Sprintf("Low latency target: %s", latencyPriority))
		}
		if intent == IntentChat {
			reasons = append(reasons, "Conversational chat")
		}
		reasons = append(reasons, "Optimized for: low-latency chat, UI responses")
	case ModelQwen3B:
		if contextLength > 8000 {
			reasons = append(reasons, fmt.Sprintf("Long context: %d tokens", contextLength))
		}
		if intent == IntentRAG || intent == IntentRetrieval || intent == IntentTranslation {
			reasons = append(reasons, fmt.Sprintf("Intent: %s", intent))
		}
		reasons = append(reasons, "Optimized for: long documents, RAG, multilingual")
	case ModelMistral7B:
		if intent == IntentSummarize || intent == IntentExplain ||
			intent == IntentCodeGen || intent == IntentCreative {
			reasons = append(reasons, fmt.Sprintf("Intent: %s", intent))
		}
		reasons = append(reasons, "Optimized for: high quality, creative, coding, explanations")
	default:
		return "Default routing"
	}
	return strings.Join(reasons, " | ")
}
