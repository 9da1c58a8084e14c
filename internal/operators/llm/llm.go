// Package llm implements the llm.* operator family (spec.md §4.D): token
// estimation, conversation-format normalization, context-length management,
// Q/A pair extraction, and instruction-template formatting, grounded on
// original_source/src/operators/llm.rs's field-path walking and per-format
// dispatch.
package llm

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every llm.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("llm.token_count", newTokenCountFactory())
	r.Register("llm.conversation_format", newConversationFormatFactory())
	r.Register("llm.context_length", newContextLengthFactory())
	r.Register("llm.qa_extract", newQAExtractFactory())
	r.Register("llm.instruction_format", newInstructionFormatFactory())
}

const (
	charsPerChineseToken = 0.6
	charsPerEnglishToken = 1.3
)

// estimateTokens is the cheap token-length heuristic every llm.* operator
// shares: ceil(0.6 per CJK ideograph + 1.3 per remaining whitespace word),
// where half the ideograph count is subtracted from the word count, with a
// floor of 1.
func estimateTokens(text string) int {
	wordCount := len(strings.Fields(text))
	var chineseChars int
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}
	englishWords := wordCount - chineseChars/2
	if englishWords < 0 {
		englishWords = 0
	}
	estimated := int(math.Ceil(float64(chineseChars)*charsPerChineseToken + float64(englishWords)*charsPerEnglishToken))
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func stringField(path record.FieldPath, r record.Record) string {
	v, ok := path.Resolve(r)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		parts := make([]string, 0, len(m))
		for _, val := range m {
			if s, ok := val.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func mustPath(p string) (record.FieldPath, error) {
	if p == "" {
		return record.FieldPath{}, zierr.Validation("llm operator requires a non-empty field path")
	}
	return record.ParseFieldPath(p)
}

// --- llm.token_count ---

type tokenCountConfig struct {
	TextField   string `json:"text_field"`
	OutputField string `json:"output_field"`
}

func newTokenCountFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := tokenCountConfig{TextField: "payload.text", OutputField: "metadata.token_count"}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		textPath, err := mustPath(cfg.TextField)
		if err != nil {
			return nil, err
		}
		outPath, err := mustPath(cfg.OutputField)
		if err != nil {
			return nil, err
		}
		return tokenCountOperator{text: textPath, out: outPath}, nil
	}
}

type tokenCountOperator struct {
	text record.FieldPath
	out  record.FieldPath
}

func (tokenCountOperator) Name() string { return "llm.token_count" }

func (o tokenCountOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		text := stringField(o.text, r)
		count := estimateTokens(text)
		o.out.SetValue(&r, count)
		out[i] = r
	}
	return out, nil
}

// --- llm.conversation_format ---

type conversationFormatConfig struct {
	InputField  string `json:"input_field"`
	OutputField string `json:"output_field"`
	Format      string `json:"format"` // chatml | sharegpt | alpaca | openai | custom

	SystemKey    string `json:"system_key"`
	UserKey      string `json:"user_key"`
	AssistantKey string `json:"assistant_key"`
}

func newConversationFormatFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := conversationFormatConfig{
			InputField:  "payload.conversation",
			OutputField: "payload.messages",
			Format:      "chatml",
		}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		inPath, err := mustPath(cfg.InputField)
		if err != nil {
			return nil, err
		}
		outPath, err := mustPath(cfg.OutputField)
		if err != nil {
			return nil, err
		}
		format := strings.ToLower(cfg.Format)
		if format == "custom" && (cfg.SystemKey == "" && cfg.UserKey == "" && cfg.AssistantKey == "") {
			return nil, zierr.Validation("llm.conversation_format custom requires system_key/user_key/assistant_key")
		}
		return conversationFormatOperator{in: inPath, out: outPath, cfg: cfg, format: format}, nil
	}
}

type conversationFormatOperator struct {
	in     record.FieldPath
	out    record.FieldPath
	cfg    conversationFormatConfig
	format string
}

func (conversationFormatOperator) Name() string { return "llm.conversation_format" }

func (o conversationFormatOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		v, _ := o.in.Resolve(r)
		messages := o.formatConversation(v)
		o.out.SetValue(&r, messages)
		out[i] = r
	}
	return out, nil
}

func message(role, content string) map[string]any {
	return map[string]any{"role": role, "content": content}
}

func (o conversationFormatOperator) formatConversation(conv any) []any {
	switch o.format {
	case "sharegpt":
		return o.toShareGPT(conv)
	case "alpaca":
		return o.toAlpaca(conv)
	case "openai":
		return o.toOpenAI(conv)
	case "custom":
		return o.toCustom(conv)
	default:
		return o.toChatML(conv)
	}
}

func (o conversationFormatOperator) toChatML(conv any) []any {
	messages := []any{}
	m, ok := conv.(map[string]any)
	if !ok {
		return messages
	}
	if system, ok := m["system"].(string); ok {
		messages = append(messages, message("system", system))
	}
	if turns, ok := m["turns"].([]any); ok {
		for i, turn := range turns {
			role := "user"
			if i%2 != 0 {
				role = "assistant"
			}
			if content, ok := turn.(string); ok {
				messages = append(messages, message(role, content))
			}
		}
	}
	return messages
}

func (o conversationFormatOperator) toShareGPT(conv any) []any {
	messages := []any{}
	m, ok := conv.(map[string]any)
	if !ok {
		return messages
	}
	conversations, ok := m["conversations"].([]any)
	if !ok {
		return messages
	}
	for _, item := range conversations {
		msgMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		from, _ := msgMap["from"].(string)
		if from == "" {
			from = "user"
		}
		value, _ := msgMap["value"].(string)
		messages = append(messages, message(from, value))
	}
	return messages
}

func (o conversationFormatOperator) toAlpaca(conv any) []any {
	messages := []any{}
	m, ok := conv.(map[string]any)
	if !ok {
		return messages
	}
	if instruction, ok := m["instruction"].(string); ok {
		messages = append(messages, message("user", instruction))
	}
	if output, ok := m["output"].(string); ok {
		messages = append(messages, message("assistant", output))
	}
	return messages
}

func (o conversationFormatOperator) toOpenAI(conv any) []any {
	if arr, ok := conv.([]any); ok {
		return arr
	}
	return []any{}
}

func (o conversationFormatOperator) toCustom(conv any) []any {
	messages := []any{}
	m, ok := conv.(map[string]any)
	if !ok {
		return messages
	}
	if o.cfg.SystemKey != "" {
		if system, ok := m[o.cfg.SystemKey].(string); ok {
			messages = append(messages, message("system", system))
		}
	}
	if o.cfg.UserKey != "" {
		if user, ok := m[o.cfg.UserKey].(string); ok {
			messages = append(messages, message("user", user))
		}
	}
	if o.cfg.AssistantKey != "" {
		if assistant, ok := m[o.cfg.AssistantKey].(string); ok {
			messages = append(messages, message("assistant", assistant))
		}
	}
	return messages
}

// --- llm.context_length ---

type contextLengthConfig struct {
	TextField string `json:"text_field"`
	MinTokens int    `json:"min_tokens"`
	MaxTokens int    `json:"max_tokens"`
	Action    string `json:"action"` // filter | truncate | split
	Overlap   int    `json:"overlap"`
}

func newContextLengthFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := contextLengthConfig{TextField: "payload.text", MaxTokens: 8192, Action: "filter"}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		textPath, err := mustPath(cfg.TextField)
		if err != nil {
			return nil, err
		}
		action := strings.ToLower(cfg.Action)
		switch action {
		case "filter", "truncate", "split":
		default:
			return nil, zierr.Validation("llm.context_length action must be filter, truncate, or split")
		}
		return contextLengthOperator{text: textPath, cfg: cfg, action: action}, nil
	}
}

type contextLengthOperator struct {
	text   record.FieldPath
	cfg    contextLengthConfig
	action string
}

func (contextLengthOperator) Name() string { return "llm.context_length" }

func (o contextLengthOperator) Apply(batch record.Batch) (record.Batch, error) {
	switch o.action {
	case "truncate":
		return o.applyTruncate(batch)
	case "split":
		return o.applySplit(batch)
	default:
		return o.applyFilter(batch)
	}
}

func (o contextLengthOperator) applyFilter(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		tokens := estimateTokens(stringField(o.text, r))
		if tokens >= o.cfg.MinTokens && tokens <= o.cfg.MaxTokens {
			out = append(out, r)
		}
	}
	return out, nil
}

func (o contextLengthOperator) applyTruncate(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		text := stringField(o.text, r)
		if estimateTokens(text) > o.cfg.MaxTokens {
			o.text.SetValue(&r, truncateText(text, o.cfg.MaxTokens))
		}
		out[i] = r
	}
	return out, nil
}

func (o contextLengthOperator) applySplit(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		text := stringField(o.text, r)
		if estimateTokens(text) <= o.cfg.MaxTokens {
			out = append(out, r)
			continue
		}
		chunks := splitText(text, o.cfg.MaxTokens, o.cfg.Overlap)
		for i, chunk := range chunks {
			chunkRecord := r.Clone()
			o.text.SetValue(&chunkRecord, chunk)
			if chunkRecord.ID != nil {
				suffixed := *chunkRecord.ID + chunkSuffix(i)
				chunkRecord.ID = &suffixed
			}
			out = append(out, chunkRecord)
		}
	}
	return out, nil
}

func chunkSuffix(i int) string {
	return "_chunk_" + strconv.Itoa(i)
}

func truncateText(text string, maxTokens int) string {
	runes := []rune(text)
	tokens := estimateTokens(text)
	if tokens == 0 {
		return text
	}
	charsPerToken := float64(len(runes)) / float64(tokens)
	maxChars := int(float64(maxTokens) * charsPerToken)
	if maxChars > len(runes) {
		maxChars = len(runes)
	}
	return string(runes[:maxChars])
}

func splitText(text string, maxTokens, overlap int) []string {
	runes := []rune(text)
	tokens := estimateTokens(text)
	if tokens == 0 {
		return []string{text}
	}
	charsPerToken := float64(len(runes)) / float64(tokens)
	chunkSize := int(float64(maxTokens) * charsPerToken)
	if chunkSize <= 0 {
		chunkSize = len(runes)
	}
	overlapChars := int(float64(overlap) * charsPerToken)

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// --- llm.qa_extract ---

type qaExtractConfig struct {
	TextField       string `json:"text_field"`
	OutputField     string `json:"output_field"`
	Pattern         string `json:"pattern"` // auto | markdown | numbered | custom
	QuestionPattern string `json:"question_pattern"`
	AnswerPattern   string `json:"answer_pattern"`
}

func newQAExtractFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := qaExtractConfig{TextField: "payload.text", OutputField: "payload.qa_pairs", Pattern: "auto"}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		textPath, err := mustPath(cfg.TextField)
		if err != nil {
			return nil, err
		}
		outPath, err := mustPath(cfg.OutputField)
		if err != nil {
			return nil, err
		}
		pattern := strings.ToLower(cfg.Pattern)
		if pattern == "custom" && (cfg.QuestionPattern == "" || cfg.AnswerPattern == "") {
			return nil, zierr.Validation("llm.qa_extract custom requires question_pattern and answer_pattern")
		}
		return qaExtractOperator{text: textPath, out: outPath, cfg: cfg, pattern: pattern}, nil
	}
}

type qaExtractOperator struct {
	text    record.FieldPath
	out     record.FieldPath
	cfg     qaExtractConfig
	pattern string
}

func (qaExtractOperator) Name() string { return "llm.qa_extract" }

func (o qaExtractOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		text := stringField(o.text, r)
		pairs := o.extractQAPairs(text)
		o.out.SetValue(&r, pairs)
		out[i] = r
	}
	return out, nil
}

func qaPair(q, a string) map[string]any {
	return map[string]any{"question": strings.TrimSpace(q), "answer": strings.TrimSpace(a)}
}

func (o qaExtractOperator) extractQAPairs(text string) []any {
	switch o.pattern {
	case "markdown":
		return extractMarkdownQA(text)
	case "numbered":
		return extractNumberedQA(text)
	case "custom":
		return extractCustomQA(text, o.cfg.QuestionPattern, o.cfg.AnswerPattern)
	default:
		if looksLikeMarkdownQA(text) {
			return extractMarkdownQA(text)
		}
		if looksLikeNumberedQA(text) {
			return extractNumberedQA(text)
		}
		return extractHeuristicQA(text)
	}
}

func looksLikeMarkdownQA(text string) bool {
	return strings.Contains(text, "## Q") || strings.Contains(text, "## Question") || strings.Contains(text, "**Q:**")
}

func looksLikeNumberedQA(text string) bool {
	return strings.Contains(text, "Q1:") || strings.Contains(text, "Question 1:") || strings.Contains(text, "1. ")
}

func extractHeuristicQA(text string) []any {
	var pairs []any
	var currentQ, currentA strings.Builder
	inAnswer := false

	flush := func() {
		q := strings.TrimSpace(currentQ.String())
		a := strings.TrimSpace(currentA.String())
		if q != "" && a != "" {
			pairs = append(pairs, qaPair(q, a))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Q:") || strings.HasPrefix(trimmed, "Question:"):
			flush()
			currentQ.Reset()
			currentA.Reset()
			currentQ.WriteString(afterColon(trimmed))
			inAnswer = false
		case strings.HasPrefix(trimmed, "A:") || strings.HasPrefix(trimmed, "Answer:"):
			currentA.Reset()
			currentA.WriteString(afterColon(trimmed))
			inAnswer = true
		case inAnswer:
			currentA.WriteString(" ")
			currentA.WriteString(trimmed)
		default:
			currentQ.WriteString(" ")
			currentQ.WriteString(trimmed)
		}
	}
	flush()
	return pairs
}

func afterColon(s string) string {
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

var (
	markdownQuestionMarkerRe = regexp.MustCompile(`(?i)##\s*(?:question|q)[:\s]*`)
	markdownAnswerMarkerRe   = regexp.MustCompile(`(?i)##\s*(?:answer|a)[:\s]*`)
	numberedQuestionMarkerRe = regexp.MustCompile(`[Qq](\d+)[:\s]+`)
	numberedAnswerMarkerRe   = regexp.MustCompile(`[Aa](\d+)[:\s]+`)
)

type qaMarker struct {
	kind   string // "q" | "a"
	num    string // numbered-pattern capture, empty for markdown markers
	start  int
	end    int
}

// sliceBetweenMarkers sorts markers by start offset so that callers can
// take each marker's text run from its end to the start of the next marker
// of either kind (or end of string).
func sliceBetweenMarkers(text string, markers []qaMarker) []qaMarker {
	sort.Slice(markers, func(i, j int) bool { return markers[i].start < markers[j].start })
	return markers
}

// extractMarkdownQA pairs "## Question" / "## Answer" blocks in declaration
// order, mirroring the zip-by-position pairing of the two marker streams.
func extractMarkdownQA(text string) []any {
	var markers []qaMarker
	for _, loc := range markdownQuestionMarkerRe.FindAllStringIndex(text, -1) {
		markers = append(markers, qaMarker{kind: "q", start: loc[0], end: loc[1]})
	}
	for _, loc := range markdownAnswerMarkerRe.FindAllStringIndex(text, -1) {
		markers = append(markers, qaMarker{kind: "a", start: loc[0], end: loc[1]})
	}
	markers = sliceBetweenMarkers(text, markers)

	var questions, answers []string
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		content := strings.TrimSpace(text[m.end:end])
		if m.kind == "q" {
			questions = append(questions, content)
		} else {
			answers = append(answers, content)
		}
	}
	return zipQA(questions, answers)
}

// extractNumberedQA pairs "Q1:"/"A1:"-style markers by their captured number
// rather than by position, matching the original's number-keyed lookup.
func extractNumberedQA(text string) []any {
	var markers []qaMarker
	for _, m := range numberedQuestionMarkerRe.FindAllStringSubmatchIndex(text, -1) {
		markers = append(markers, qaMarker{kind: "q", num: text[m[2]:m[3]], start: m[0], end: m[1]})
	}
	for _, m := range numberedAnswerMarkerRe.FindAllStringSubmatchIndex(text, -1) {
		markers = append(markers, qaMarker{kind: "a", num: text[m[2]:m[3]], start: m[0], end: m[1]})
	}
	markers = sliceBetweenMarkers(text, markers)

	questionByNum := map[string]string{}
	answerByNum := map[string]string{}
	var questionOrder []string
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		content := strings.TrimSpace(text[m.end:end])
		if m.kind == "q" {
			questionByNum[m.num] = content
			questionOrder = append(questionOrder, m.num)
		} else {
			answerByNum[m.num] = content
		}
	}

	var pairs []any
	for _, num := range questionOrder {
		if a, ok := answerByNum[num]; ok {
			pairs = append(pairs, qaPair(questionByNum[num], a))
		}
	}
	return pairs
}

// extractCustomQA zips whole-match text from two user-supplied patterns in
// declaration order; Go's RE2 engine does not support lookahead, so custom
// patterns must bound their own match (e.g. with an explicit terminator)
// rather than relying on a trailing assertion.
func extractCustomQA(text, questionPattern, answerPattern string) []any {
	qRe, err := regexp.Compile(questionPattern)
	if err != nil {
		return nil
	}
	aRe, err := regexp.Compile(answerPattern)
	if err != nil {
		return nil
	}
	questions := qRe.FindAllString(text, -1)
	answers := aRe.FindAllString(text, -1)
	return zipQA(questions, answers)
}

func zipQA(questions, answers []string) []any {
	n := len(questions)
	if len(answers) < n {
		n = len(answers)
	}
	pairs := make([]any, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, qaPair(questions[i], answers[i]))
	}
	return pairs
}

// --- llm.instruction_format ---

type instructionFormatConfig struct {
	InstructionField string `json:"instruction_field"`
	InputField       string `json:"input_field"`
	OutputField      string `json:"output_field"`
	Format           string `json:"format"` // alpaca | vicuna | llama2 | chatml | custom
	Template         string `json:"template"`
}

func newInstructionFormatFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := instructionFormatConfig{
			InstructionField: "payload.instruction",
			InputField:       "payload.input",
			OutputField:      "payload.formatted",
			Format:           "alpaca",
		}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		instructionPath, err := mustPath(cfg.InstructionField)
		if err != nil {
			return nil, err
		}
		var inputPath record.FieldPath
		if cfg.InputField != "" {
			inputPath, err = mustPath(cfg.InputField)
			if err != nil {
				return nil, err
			}
		}
		outPath, err := mustPath(cfg.OutputField)
		if err != nil {
			return nil, err
		}
		format := strings.ToLower(cfg.Format)
		if format == "custom" && cfg.Template == "" {
			return nil, zierr.Validation("llm.instruction_format custom requires a template")
		}
		return instructionFormatOperator{
			instruction: instructionPath,
			input:       inputPath,
			hasInput:    cfg.InputField != "",
			out:         outPath,
			cfg:         cfg,
			format:      format,
		}, nil
	}
}

type instructionFormatOperator struct {
	instruction record.FieldPath
	input       record.FieldPath
	hasInput    bool
	out         record.FieldPath
	cfg         instructionFormatConfig
	format      string
}

func (instructionFormatOperator) Name() string { return "llm.instruction_format" }

func (o instructionFormatOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		instruction := stringField(o.instruction, r)
		input := ""
		if o.hasInput {
			input = stringField(o.input, r)
		}
		formatted := o.formatInstruction(instruction, input)
		o.out.SetValue(&r, formatted)
		out[i] = r
	}
	return out, nil
}

func (o instructionFormatOperator) formatInstruction(instruction, input string) string {
	switch o.format {
	case "vicuna":
		return "A chat between a curious user and an artificial intelligence assistant. " +
			"The assistant gives helpful, detailed, and polite answers to the user's questions.\n\n" +
			"USER: " + instruction + "\nASSISTANT:"
	case "llama2":
		return "<s>[INST] " + instruction + " [/INST]"
	case "chatml":
		if input == "" {
			return "<|im_start|>user\n" + instruction + "<|im_end|>\n<|im_start|>assistant\n"
		}
		return "<|im_start|>user\n" + instruction + "\n\n" + input + "<|im_end|>\n<|im_start|>assistant\n"
	case "custom":
		result := o.cfg.Template
		result = strings.ReplaceAll(result, "{{instruction}}", instruction)
		result = strings.ReplaceAll(result, "{{input}}", input)
		return result
	default: // alpaca
		if input == "" {
			return "### Instruction:\n" + instruction + "\n\n### Response:\n"
		}
		return "### Instruction:\n" + instruction + "\n\n### Input:\n" + input + "\n\n### Response:\n"
	}
}
