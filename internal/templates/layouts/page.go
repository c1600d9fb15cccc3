// Package layouts holds the HTML shell shared by server-rendered pages.
package layouts

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// Palette is the set of CSS colors a page is rendered with.
type Palette struct {
	Primary   string
	Secondary string
	Accent    string
	Muted     string
}

var DefaultPalette = Palette{
	Primary:   "#1d4ed8",
	Secondary: "#0f172a",
	Accent:    "#f59e0b",
	Muted:     "#64748b",
}

func (p Palette) cssVars() string {
	return fmt.Sprintf(
		":root{--grudge-primary:%s;--grudge-secondary:%s;--grudge-accent:%s;--grudge-muted:%s;}",
		p.Primary,
		p.Secondary,
		p.Accent,
		p.Muted,
	)
}

const pageStyles = `body{font-family:system-ui,sans-serif;margin:0;color:var(--grudge-secondary);background:#f8fafc}
header{background:var(--grudge-primary);color:#fff;padding:1rem 1.5rem}
header p{margin:.25rem 0 0;opacity:.85}
main{max-width:960px;margin:0 auto;padding:1.5rem}
table{width:100%;border-collapse:collapse;margin-bottom:2rem;background:#fff}
th,td{padding:.5rem;border-bottom:1px solid #e2e8f0;text-align:left}
th{color:var(--grudge-muted);font-weight:600}
.winner{color:var(--grudge-accent);font-weight:700}
footer{color:var(--grudge-muted);font-size:.8rem;text-align:center;padding:1rem}`

// Page wraps body in a standalone HTML document.
func Page(title, subtitle string, palette Palette, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := fmt.Sprintf(
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><style>%s%s</style></head><body><header><h1>%s</h1>`,
			html.EscapeString(title),
			palette.cssVars(),
			pageStyles,
			html.EscapeString(title),
		)
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if subtitle != "" {
			if _, err := fmt.Fprintf(w, `<p>%s</p>`, html.EscapeString(subtitle)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</header><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main><footer>Shared from Grudge</footer></body></html>`)
		return err
	})
}
