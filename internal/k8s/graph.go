package k8s

import (
	"context"

	"github.com/emicklei/dot"

	"github.com/example/kanrigate/internal/naming"
)

// GraphNode is one object in a permission graph.
type GraphNode struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`

	// Managed is set on bindings whose name follows the naming convention,
	// i.e. bindings this service created.
	Managed bool `json:"managed,omitempty"`
}

// GraphEdge links a subject to a binding, or a binding to its role.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// PermissionGraph is what the UI draws for one user: identity -> bindings ->
// roles.
type PermissionGraph struct {
	Username         string      `json:"username"`
	Nodes            []GraphNode `json:"nodes"`
	Edges            []GraphEdge `json:"edges"`
	FailedNamespaces []string    `json:"failed_namespaces,omitempty"`
}

// PermissionGraph scans namespaced and cluster bindings for username and
// returns them as a graph. Namespaces that failed to list are reported like
// in NamespacedPermissions.
func (o *Ops) PermissionGraph(ctx context.Context, username string) (*PermissionGraph, error) {
	namespaced, failed, err := o.namespacedGrants(ctx, username)
	if err != nil {
		return nil, err
	}
	cluster, err := o.clusterGrants(ctx, username)
	if err != nil {
		return nil, err
	}
	g := BuildPermissionGraph(username, o.credentialNamespace, append(namespaced, cluster...))
	g.FailedNamespaces = failed
	return g, nil
}

// BuildPermissionGraph turns grants into nodes and edges. Roles shared by
// several bindings appear once.
func BuildPermissionGraph(username, identityNamespace string, grants []Grant) *PermissionGraph {
	g := &PermissionGraph{
		Username: username,
		Nodes:    []GraphNode{},
		Edges:    []GraphEdge{},
	}

	subjectID := "sa:" + identityNamespace + ":" + username
	g.Nodes = append(g.Nodes, GraphNode{
		ID:        subjectID,
		Kind:      "ServiceAccount",
		Name:      username,
		Namespace: identityNamespace,
	})

	roles := map[string]bool{}
	for _, grant := range grants {
		bindingID := "crb:" + grant.BindingName
		kind := "ClusterRoleBinding"
		if grant.Namespace != "" {
			bindingID = "rb:" + grant.Namespace + ":" + grant.BindingName
			kind = "RoleBinding"
		}
		_, managed := naming.ParseBindingName(grant.BindingName)
		g.Nodes = append(g.Nodes, GraphNode{
			ID:        bindingID,
			Kind:      kind,
			Name:      grant.BindingName,
			Namespace: grant.Namespace,
			Managed:   managed,
		})

		role := roleNode(grant)
		roleID := role.ID
		if !roles[roleID] {
			roles[roleID] = true
			g.Nodes = append(g.Nodes, role)
		}

		g.Edges = append(g.Edges,
			GraphEdge{ID: "edge:" + subjectID + "->" + bindingID, Source: subjectID, Target: bindingID},
			GraphEdge{ID: "edge:" + bindingID + "->" + roleID, Source: bindingID, Target: roleID},
		)
	}
	return g
}

// roleNode returns the node a grant's roleRef points at. Roles are keyed by
// namespace so a Role and a ClusterRole of the same name stay apart.
func roleNode(grant Grant) GraphNode {
	if grant.RoleRefKind == "Role" && grant.Namespace != "" {
		return GraphNode{
			ID:        "role:" + grant.Namespace + ":" + grant.RoleRef,
			Kind:      "Role",
			Name:      grant.RoleRef,
			Namespace: grant.Namespace,
		}
	}
	return GraphNode{ID: "cr:" + grant.RoleRef, Kind: "ClusterRole", Name: grant.RoleRef}
}

// DOT renders the graph in Graphviz format. Namespaced bindings are grouped
// in one dashed cluster per namespace.
func (g *PermissionGraph) DOT() string {
	out := dot.NewGraph(dot.Directed)
	out.Attr("newrank", "true")

	subgraphs := map[string]*dot.Graph{}
	parent := func(ns string) *dot.Graph {
		if ns == "" {
			return out
		}
		if sub, ok := subgraphs[ns]; ok {
			return sub
		}
		sub := out.Subgraph(ns, dot.ClusterOption{})
		sub.Attr("style", "dashed")
		subgraphs[ns] = sub
		return sub
	}

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		switch n.Kind {
		case "ServiceAccount":
			nodes[n.ID] = out.Node(n.ID).Box().
				Attr("label", n.Name+"\n(ServiceAccount)").
				Attr("style", "filled").
				Attr("fillcolor", "#2f6de1").
				Attr("fontcolor", "#f0f0f0")
		case "RoleBinding":
			nodes[n.ID] = parent(n.Namespace).Node(n.ID).
				Attr("label", n.Name).
				Attr("shape", "octagon").
				Attr("style", "filled").
				Attr("fillcolor", "#ffcc00")
		case "Role":
			nodes[n.ID] = parent(n.Namespace).Node(n.ID).
				Attr("label", n.Name+"\n(Role)").
				Attr("shape", "octagon").
				Attr("style", "filled").
				Attr("fillcolor", "#ff9900")
		case "ClusterRoleBinding":
			nodes[n.ID] = out.Node(n.ID).
				Attr("label", n.Name).
				Attr("shape", "doubleoctagon").
				Attr("style", "filled").
				Attr("fillcolor", "#ffcc00")
		default:
			nodes[n.ID] = out.Node(n.ID).
				Attr("label", n.Name).
				Attr("shape", "doubleoctagon").
				Attr("style", "filled").
				Attr("fillcolor", "#ff9900")
		}
	}
	for _, n := range g.Nodes {
		if (n.Kind == "RoleBinding" || n.Kind == "ClusterRoleBinding") && !n.Managed {
			nodes[n.ID].Attr("style", "filled,dashed")
		}
	}
	for _, e := range g.Edges {
		out.Edge(nodes[e.Source], nodes[e.Target])
	}
	return out.String()
}
