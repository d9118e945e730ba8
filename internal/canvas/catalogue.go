package canvas

// DimensionID identifies one of the twelve scored canvas dimensions.
type DimensionID int

type Group string

const (
	GroupFoundation    Group = "fundacao"
	GroupProductMarket Group = "produtoMercado"
	GroupScale         Group = "escala"
	GroupGovernance    Group = "governanca"
)

type Dimension struct {
	ID    DimensionID
	Key   string
	Name  string
	Group Group
}

// Catalogue lists the known dimensions in display order.
var Catalogue = []Dimension{
	{ID: 1, Key: "problema", Name: "Problem / Opportunity", Group: GroupFoundation},
	{ID: 2, Key: "proposta-de-valor", Name: "Value Proposition", Group: GroupFoundation},
	{ID: 3, Key: "produto-tecnologia", Name: "Product / Technology", Group: GroupProductMarket},
	{ID: 4, Key: "clientes-tracao", Name: "Customers / Traction", Group: GroupProductMarket},
	{ID: 5, Key: "plg", Name: "Product-Led Growth", Group: GroupProductMarket},
	{ID: 6, Key: "modelo-de-negocio", Name: "Business Model", Group: GroupScale},
	{ID: 7, Key: "equipe", Name: "Team", Group: GroupFoundation},
	{ID: 8, Key: "operacoes", Name: "Operations / Execution", Group: GroupScale},
	{ID: 9, Key: "marketing-canais", Name: "Marketing / Channels", Group: GroupProductMarket},
	{ID: 10, Key: "sustentacao-financeira", Name: "Financial Sustainability", Group: GroupScale},
	{ID: 11, Key: "estrategia-visao", Name: "Strategy / Vision", Group: GroupGovernance},
	{ID: 12, Key: "governanca-compliance", Name: "Governance & Compliance", Group: GroupGovernance},
}

// DimensionCount is the fixed number of dimensions on every canvas.
const DimensionCount = 12

const (
	MinScore = 1
	MaxScore = 9
)

// Known reports whether id belongs to the catalogue.
func Known(id DimensionID) bool {
	return id >= 1 && int(id) <= len(Catalogue)
}

// Lookup returns the catalogue entry for id.
func Lookup(id DimensionID) (Dimension, bool) {
	if !Known(id) {
		return Dimension{}, false
	}
	return Catalogue[id-1], true
}
