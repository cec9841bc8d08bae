package config

// DefaultOCRPrompt is the prompt sent to the vision model when a job
// does not specify its own.
const DefaultOCRPrompt = "Extract all text from this scanned book page. " +
	"Preserve paragraph structure. Output only the extracted text, nothing else."

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		OllamaBaseURL: "http://localhost:11434",
		OllamaModel:   "qwen2.5-vl:7b",

		OCRTimeout: 120,
		OCRRetries: 3,

		RenderDPI:       300,
		JPEGQuality:     85,
		OCRWorkers:      2,
		RenderQueueSize: 4,
		PagesPerChapter: 20,

		DataDir:     "./data",
		JobTTLHours: 24,
		PDFTTLHours: 1,

		SSERingBufferSize: 200,

		DefaultOCRPrompt: DefaultOCRPrompt,
	}
}
