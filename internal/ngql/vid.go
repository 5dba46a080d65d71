package ngql

import "strings"

// VertexID derives a vertex id from a type name and the rendered literal of
// its primary key: VertexID("player", `"100"`) == "player_100".
//
// One pair of surrounding double quotes is stripped; any escaping inside the
// literal is kept so the id can be embedded in a quoted statement position
// unchanged. Ids are unique only if primary keys are unique within the type.
func VertexID(typeName, pkLiteral string) string {
	v := pkLiteral
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = v[1 : len(v)-1]
	}
	return typeName + "_" + v
}
