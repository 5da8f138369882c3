package template

import (
	"context"
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// jinja2Engine renders Django/Jinja2-style templates with pongo2.
type jinja2Engine struct{}

func (jinja2Engine) compile(source string) (renderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template: %w", err)
	}
	return jinja2Renderer{tpl: tpl}, nil
}

type jinja2Renderer struct {
	tpl *pongo2.Template
}

func (r jinja2Renderer) render(ctx context.Context, rc renderContext) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.tpl.Execute(pongo2.Context{
		"request": rc.requestView(),
		"method":  rc.req.Method,
		"path":    rc.req.Path,
		"body":    rc.body(),
		"now":     rc.nowRFC3339(),

		"pathParam":  rc.pathParam,
		"queryParam": rc.queryParam,
		"header":     rc.header,
		"cookie":     rc.cookie,
		"nowFormat":  rc.nowFormat,
		"jsonPath":   rc.jsonPath,
		"uuid":       newUUID,
		"randomInt":  randomInt,
		"seq":        seqInts,
		"toJSON":     toJSONString,
	})
	if err != nil {
		return nil, fmt.Errorf("jinja2 template render failed: %w", err)
	}
	return []byte(result), nil
}
