package graphqlapi

import (
	_ "embed"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/DiamondLightSource/numtracker/internal/auth"
	"github.com/DiamondLightSource/numtracker/internal/obslog"
	"github.com/DiamondLightSource/numtracker/internal/service"
)

//go:embed schema.graphql
var SchemaText string

// NewSchema parses the embedded SDL against the root resolver.
func NewSchema(svc *service.Service, verifier *auth.Verifier) (*graphql.Schema, error) {
	root := NewRoot(svc, verifier)
	return graphql.ParseSchema(SchemaText, root, graphql.UseFieldResolvers())
}

// NewHandler returns an http.Handler serving POST /graphql and
// GET /graphiql, a single constructor returning a ready-to-mount mux.
func NewHandler(schema *graphql.Schema) http.Handler {
	log := obslog.Component("graphql")
	relayHandler := &relay.Handler{Schema: schema}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, req *http.Request) {
		req = withRequestContext(req)
		log.Debug().Str("request_id", requestID(req.Context())).Str("method", req.Method).Msg("graphql request")
		relayHandler.ServeHTTP(w, req)
	})
	mux.HandleFunc("/graphiql", serveGraphiQL)
	return mux
}

func serveGraphiQL(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(graphiQLPage))
}

const graphiQLPage = `<!DOCTYPE html>
<html>
<head>
	<title>numtracker - GraphiQL</title>
	<style>body { height: 100%; margin: 0; width: 100%; overflow: hidden; }
	#graphiql { height: 100vh; }</style>
	<script src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
	<script src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
	<script src="https://unpkg.com/graphiql/graphiql.min.js"></script>
	<link rel="stylesheet" href="https://unpkg.com/graphiql/graphiql.min.css" />
</head>
<body>
	<div id="graphiql">Loading...</div>
	<script>
		const fetcher = GraphiQL.createFetcher({ url: '/graphql' });
		ReactDOM.render(
			React.createElement(GraphiQL, { fetcher: fetcher }),
			document.getElementById('graphiql'),
		);
	</script>
</body>
</html>`
