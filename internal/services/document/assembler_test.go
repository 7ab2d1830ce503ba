package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/playforge/internal/models"
)

func TestAssemble_FullDocumentInjectsBeforeMarkers(t *testing.T) {
	result := models.GenerationResult{
		HTML: "<!DOCTYPE html><html><head><title>Snake</title></head><body><canvas></canvas></body></html>",
		CSS:  "body{margin:0}",
		JS:   "start()",
	}

	doc := Assemble(result)

	assert.Equal(t,
		"<!DOCTYPE html><html><head><title>Snake</title><style>\nbody{margin:0}\n</style>\n</head>"+
			"<body><canvas></canvas><script>\nstart()\n</script>\n</body></html>",
		doc)
}

func TestAssemble_FullDocumentIdempotent(t *testing.T) {
	html := "<!DOCTYPE html><html><head><style>h1{color:blue}</style></head>" +
		"<body><h1>Hi</h1><script>go()</script></body></html>"

	doc := Assemble(models.GenerationResult{HTML: html, CSS: "h1{color:red}", JS: "other()"})
	assert.Equal(t, html, doc)

	again := Assemble(models.GenerationResult{HTML: doc, CSS: "h1{color:red}", JS: "other()"})
	assert.Equal(t, doc, again)
	assert.Equal(t, 1, strings.Count(again, "<style>"))
	assert.Equal(t, 1, strings.Count(again, "<script>"))
}

func TestAssemble_FullDocumentFallbacks(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "no head closes before html end",
			html: "<html><body>x</body></html>",
			want: "<html><body>x<script>\nrun()\n</script>\n</body><head><style>\np{}\n</style></head></html>",
		},
		{
			name: "no body uses html end for script",
			html: "<html><head></head>x</html>",
			want: "<html><head><style>\np{}\n</style>\n</head>x<script>\nrun()\n</script></html>",
		},
		{
			name: "no markers wraps the fragment",
			html: "<!doctype html><div>x</div>",
			want: "<!DOCTYPE html><html><head><style>\np{}\n</style></head><body><!doctype html><div>x</div>" +
				"<script>\nrun()\n</script>\n</body></html>",
		},
		{
			name: "upper case markers",
			html: "<HTML><HEAD></HEAD><BODY>x</BODY></HTML>",
			want: "<HTML><HEAD><style>\np{}\n</style>\n</HEAD><BODY>x<script>\nrun()\n</script>\n</BODY></HTML>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assemble(models.GenerationResult{HTML: tt.html, CSS: "p{}", JS: "run()"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemble_FullDocumentSkipsEmptyParts(t *testing.T) {
	html := "<!DOCTYPE html><html><head></head><body></body></html>"
	assert.Equal(t, html, Assemble(models.GenerationResult{HTML: html}))
}

func TestAssemble_Fragment(t *testing.T) {
	doc := Assemble(models.GenerationResult{HTML: "<canvas id=\"c\"></canvas>", CSS: "canvas{width:100%}", JS: "draw()"})

	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, `<meta charset="UTF-8">`)
	assert.Contains(t, doc, `<meta name="viewport" content="width=device-width, initial-scale=1.0">`)
	assert.Contains(t, doc, "<title>Generated Content</title>")
	assert.Contains(t, doc, "<style>\ncanvas{width:100%}\n    </style>")
	assert.Contains(t, doc, "<canvas id=\"c\"></canvas>")
	assert.Contains(t, doc, "<script>\ndraw()\n    </script>")
	assert.True(t, strings.HasSuffix(doc, "</body>\n</html>"))
	assert.Less(t, strings.Index(doc, "</style>"), strings.Index(doc, "<body>"))
	assert.Greater(t, strings.Index(doc, "<script>"), strings.Index(doc, "<body>"))
}

func TestAssemble_FragmentWithoutStyleOrScript(t *testing.T) {
	doc := Assemble(models.GenerationResult{HTML: "<p>hi</p>"})
	assert.NotContains(t, doc, "<style>")
	assert.NotContains(t, doc, "<script>")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Snake", Title("<html><head><title> Snake </title></head><body></body></html>"))
	assert.Equal(t, "Generated Content", Title(Assemble(models.GenerationResult{HTML: "<p>x</p>"})))
	assert.Equal(t, "", Title("<p>no title</p>"))
}

func TestAssemble_ScriptAppendedWithoutMarkers(t *testing.T) {
	doc := Assemble(models.GenerationResult{HTML: "<!doctype html><div>x</div>", JS: "run()"})
	assert.Equal(t, "<!doctype html><div>x</div><script>\nrun()\n</script>", doc)
}
