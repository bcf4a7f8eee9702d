package main

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	universal "github.com/goliatone/go-universal"
)

func viewerCard(id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		data, err := load(ctx, universal.Operation{Name: "Viewer", Variables: map[string]any{"id": id}})
		if err != nil {
			return err
		}
		viewer, ok := data.(map[string]any)
		if !ok {
			_, err = io.WriteString(w, `<section class="viewer">loading</section>`)
			return err
		}
		_, err = fmt.Fprintf(w, `<section class="viewer">%s</section>`, templ.EscapeString(fmt.Sprint(viewer["name"])))
		return err
	})
}

func postList(count int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		data, err := load(ctx, universal.Operation{Name: "Posts", Variables: map[string]any{"count": count}})
		if err != nil {
			return err
		}
		posts, ok := data.([]any)
		if !ok {
			_, err = io.WriteString(w, `<ul class="posts">loading</ul>`)
			return err
		}
		if _, err := io.WriteString(w, `<ul class="posts">`); err != nil {
			return err
		}
		for _, post := range posts {
			entry, _ := post.(map[string]any)
			if _, err := fmt.Fprintf(w, "<li>%s</li>", templ.EscapeString(fmt.Sprint(entry["title"]))); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</ul>")
		return err
	})
}

// load starts op for the current pass and returns whatever the cache holds
// for it. During a server prepass the data arrives in a later pass.
func load(ctx context.Context, op universal.Operation) (any, error) {
	client, err := universal.UseClient(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.Prefetch(ctx, op); err != nil {
		return nil, err
	}
	result, err := client.Query(ctx, op, universal.WithFetchPolicy(universal.FetchCacheOnly))
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
