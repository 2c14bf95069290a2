package supergraph

// fallbackSDL is the single-subgraph schema served when the registry reports
// zero subgraphs and no previous supergraph exists. It keeps the gateway
// serving its schema download and health checks until real subgraphs appear.
const fallbackSDL = `type Query {
	_status: String
}
`
