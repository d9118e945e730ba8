// Package survey implements the research questionnaire that accompanies the
// canvas: the instrument catalogue, submission payloads, drafts and consent.
package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
)

const (
	// Version is the approved questionnaire revision.
	Version = "questionario_quantitativo_srl_canvas_revisado_2025-11-28"
	// ConsentVersion is the informed-consent term participants accept.
	ConsentVersion = "tcle_v1_2025-11-28"
)

// ChoiceOption is one answer of a closed question.
type ChoiceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type KeyLabel struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type SUSItem struct {
	Key   int    `json:"key"`
	Label string `json:"label"`
}

var LikertOptions = []int{1, 2, 3, 4, 5}

var LikertLabels = map[int]string{
	1: "Discordo totalmente",
	2: "Discordo",
	3: "Neutro",
	4: "Concordo",
	5: "Concordo totalmente",
}

// Dimensions are the canvas dimensions as named in the questionnaire.
var Dimensions = []KeyLabel{
	{"problema_oportunidade", "Problema/Oportunidade"},
	{"proposta_valor", "Proposta de Valor"},
	{"produto_tecnologia", "Produto/Tecnologia"},
	{"clientes_tracao", "Clientes/Tracao"},
	{"plg", "Product-Led Growth (PLG)"},
	{"modelo_negocio", "Modelo de Negocio"},
	{"equipe", "Equipe"},
	{"operacoes_execucao", "Operacoes/Execucao"},
	{"marketing_canais", "Marketing/Canais"},
	{"sustentacao_financeira", "Sustentacao Financeira"},
	{"estrategia_visao", "Estrategia/Visao"},
	{"governanca_compliance", "Governanca & Compliance"},
}

// Assertions are rated on the Likert scale for every dimension.
var Assertions = []KeyLabel{
	{"definitionClarity", "A definicao do bloco esta clara."},
	{"levelCriteriaClarity", "Os criterios de niveis (1 a 9) para este bloco sao compreensiveis."},
	{"objectiveScoring", "Consigo pontuar este bloco de forma relativamente objetiva."},
	{"dimensionRelevance", "Este bloco e relevante para avaliar a maturidade de uma startup."},
}

var (
	RoleOptions = []ChoiceOption{
		{"empreendedor_fundador", "Empreendedor(a) / Fundador(a)"},
		{"mentor", "Mentor(a)"},
		{"investidor", "Investidor(a) (Anjo/VC/Corporate VC)"},
		{"gestor_incubadora_aceleradora", "Gestor(a) de incubadora/aceleradora"},
		{"consultor", "Consultor(a)"},
		{"pesquisador_docente", "Pesquisador(a)/Docente"},
		{"outro", "Outro"},
	}
	ExperienceOptions = []ChoiceOption{
		{"lt_1", "< 1 ano"},
		{"1_3", "1-3 anos"},
		{"4_6", "4-6 anos"},
		{"7_10", "7-10 anos"},
		{"gt_10", "> 10 anos"},
	}
	SectorOptions = []ChoiceOption{
		{"saas_software", "SaaS / Software"},
		{"industria_hardware_iot", "Industria / Hardware / IoT"},
		{"health_biotech", "Health / Biotech"},
		{"fintech_insurtech", "FinTech / InsurTech"},
		{"agtech_food", "AgTech / Food"},
		{"gov_edtech_impacto", "Gov / EdTech / Impacto Social"},
		{"outro", "Outro"},
	}
	StageOptions = []ChoiceOption{
		{"ideacao", "Ideacao"},
		{"validacao", "Validacao"},
		{"tracao", "Tracao"},
		{"escala", "Escala"},
	}
	TeamSizeOptions = []ChoiceOption{
		{"1_3", "1-3 pessoas"},
		{"4_10", "4-10 pessoas"},
		{"11_30", "11-30 pessoas"},
		{"gt_30", "> 30 pessoas"},
	}
	PreferredScaleOptions = []ChoiceOption{
		{"nao", "Nao"},
		{"1_5", "1-5"},
		{"1_7", "1-7"},
		{"outro", "Outro"},
	}
	UsageContextOptions = []ChoiceOption{
		{"autoavaliacao_startup", "Autoavaliacao de startup"},
		{"selecao_programas", "Selecao de startups em programas (aceleracao/incubacao)"},
		{"acompanhamento_portfolio", "Acompanhamento de portfolio"},
		{"analise_investimento", "Analise de investimento (due diligence)"},
		{"ensino_aprendizagem", "Ensino/aprendizagem"},
		{"outro", "Outro"},
	}
	AcceptableTimeOptions = []ChoiceOption{
		{"ate_15", "<= 15 minutos"},
		{"16_30", "16-30 minutos"},
		{"31_45", "31-45 minutos"},
		{"gt_45", "> 45 minutos"},
	}
)

var SUSItems = []SUSItem{
	{1, "Eu usaria o SRL Canvas com frequencia no meu trabalho."},
	{2, "Achei o SRL Canvas desnecessariamente complexo."},
	{3, "Achei o SRL Canvas facil de usar."},
	{4, "Eu precisaria do apoio de um especialista para aplicar o SRL Canvas."},
	{5, "As funcionalidades/dimensoes do SRL Canvas estao bem integradas."},
	{6, "Ha muita inconsistenca entre os blocos."},
	{7, "A maioria das pessoas aprenderia a usar o SRL Canvas rapidamente."},
	{8, "Considerei o SRL Canvas pesado e trabalhoso de usar."},
	{9, "Senti-me confiante usando o SRL Canvas."},
	{10, "Precisei aprender muitas coisas antes de conseguir usar o SRL Canvas."},
}

// instrument is serialized in a fixed field order; the fingerprint depends
// on it.
type instrument struct {
	SurveyVersion         string         `json:"surveyVersion"`
	ConsentVersion        string         `json:"consentVersion"`
	LikertOptions         []int          `json:"likertOptions"`
	LikertLabels          []string       `json:"likertLabels"`
	Dimensions            []KeyLabel     `json:"dimensions"`
	Assertions            []KeyLabel     `json:"assertions"`
	ProfileRoleOptions    []ChoiceOption `json:"profileRoleOptions"`
	ExperienceOptions     []ChoiceOption `json:"experienceOptions"`
	SectorOptions         []ChoiceOption `json:"sectorOptions"`
	StageOptions          []ChoiceOption `json:"stageOptions"`
	TeamSizeOptions       []ChoiceOption `json:"teamSizeOptions"`
	PreferredScaleOptions []ChoiceOption `json:"preferredScaleOptions"`
	SUSItems              []SUSItem      `json:"susItems"`
	UsageContextOptions   []ChoiceOption `json:"usageContextOptions"`
	AcceptableTimeOptions []ChoiceOption `json:"acceptableTimeOptions"`
}

// EthicsFingerprint identifies the exact instrument text submitted for
// ethics approval. Any change to versions, options or labels changes it.
func EthicsFingerprint() string {
	labels := make([]string, 0, len(LikertOptions))
	for _, option := range LikertOptions {
		labels = append(labels, LikertLabels[option])
	}
	payload := instrument{
		SurveyVersion:         Version,
		ConsentVersion:        ConsentVersion,
		LikertOptions:         LikertOptions,
		LikertLabels:          labels,
		Dimensions:            Dimensions,
		Assertions:            Assertions,
		ProfileRoleOptions:    RoleOptions,
		ExperienceOptions:     ExperienceOptions,
		SectorOptions:         SectorOptions,
		StageOptions:          StageOptions,
		TeamSizeOptions:       TeamSizeOptions,
		PreferredScaleOptions: PreferredScaleOptions,
		SUSItems:              SUSItems,
		UsageContextOptions:   UsageContextOptions,
		AcceptableTimeOptions: AcceptableTimeOptions,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// The instrument only holds strings and ints; encoding cannot fail.
	_ = enc.Encode(payload)
	return fmt.Sprintf("ethics-%s:%s", Version, hashString(bytes.TrimRight(buf.Bytes(), "\n")))
}

// hashString is djb2 with xor over UTF-16 code units, rendered as eight
// hex digits.
func hashString(value []byte) string {
	var hash uint32 = 5381
	for _, unit := range utf16.Encode([]rune(string(value))) {
		hash = (hash * 33) ^ uint32(unit)
	}
	return fmt.Sprintf("%08x", hash)
}
