package broadcast

// technicalLines is the fixed narration shown while a generation is in flight
var technicalLines = []string{
	"Tokenizing prompt text...",
	"Mapping tokens into embedding space...",
	"Warming up attention heads...",
	"Projecting query, key and value matrices...",
	"Adding positional encodings...",
	"Running transformer blocks...",
	"Scoring attention weights...",
	"Merging multi-head outputs...",
	"Normalizing layer activations...",
	"Passing through feed-forward layers...",
	"Applying residual connections...",
	"Sampling from output distribution...",
	"Ranking token candidates...",
	"Scaling logits by temperature...",
	"Pruning unlikely tokens...",
	"Extending context window...",
	"Refreshing hidden state...",
	"Estimating next-token probabilities...",
	"Keeping top-k candidates...",
	"Applying nucleus sampling...",
	"Checking token sequence...",
	"Encoding output tokens...",
	"Shaping JSON envelope...",
	"Checking JSON syntax...",
	"Laying out HTML structure...",
	"Composing CSS rules...",
	"Drafting JavaScript logic...",
	"Tidying code structure...",
	"Checking HTML5 conformance...",
	"Resolving CSS specificity...",
	"Dry-running script paths...",
	"Assembling DOM tree...",
	"Attaching style rules...",
	"Wiring event handlers...",
	"Checking responsive breakpoints...",
	"Reviewing cross-browser behaviour...",
	"Ordering asset loading...",
	"Packing output data...",
	"Wrapping up code generation...",
	"Preparing response payload...",
	"Streaming response chunks...",
	"Buffering streamed output...",
	"Verifying stream integrity...",
	"Rebuilding JSON payload...",
	"Reading response structure...",
	"Separating code components...",
	"Validating HTML tree...",
	"Validating stylesheet...",
	"Validating script syntax...",
	"Sanitizing output...",
	"Running security filters...",
	"Sealing code blocks...",
	"Staging preview...",
	"Checking sandbox limits...",
	"Tuning render performance...",
	"Checking memory budget...",
	"Checking resource limits...",
	"Finalizing output format...",
	"Preparing delivery...",
	"Completing generation...",
}
