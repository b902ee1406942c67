package pasture

import "github.com/lapig-ufg/pasto-legal/internal/raster"

// Dataset names used in queries, logs and errors.
const (
	DatasetBiomass   = "biomass"
	DatasetAge       = "age"
	DatasetVigor     = "vigor"
	DatasetLandCover = "land_cover"
)

// The age raster stores 200 + years since conversion to pasture; 100 marks
// pastures whose age could not be determined, counted as 40 years.
const (
	ageOffset   = -200
	ageSentinel = -100
	ageFallback = 40
)

// AgeBucket is one of the four fixed pasture age ranges.
type AgeBucket struct {
	Class int
	Label string
}

var AgeBuckets = []AgeBucket{
	{1, "1-10"},
	{2, "10-20"},
	{3, "20-30"},
	{4, "30-40"},
}

func ageClassifier() *raster.Classifier {
	sentinel := float64(ageSentinel)
	return &raster.Classifier{
		Offset:   ageOffset,
		Sentinel: &sentinel,
		Fallback: ageFallback,
		Buckets: []raster.Bucket{
			{Class: 1, Min: 1, Max: 10},
			{Class: 2, Min: 10, Max: 20, MinExclusive: true},
			{Class: 3, Min: 20, Max: 30, MinExclusive: true},
			{Class: 4, Min: 30, Max: 40, MinExclusive: true},
		},
	}
}

type VigorLevel string

const (
	VigorLow    VigorLevel = "Low"
	VigorMedium VigorLevel = "Medium"
	VigorHigh   VigorLevel = "High"
)

type vigorClass struct {
	Class int
	Level VigorLevel
}

var vigorClasses = []vigorClass{
	{1, VigorLow},
	{2, VigorMedium},
	{3, VigorHigh},
}

// LandCoverClass is one entry of the MapBiomas collection 10 legend.
type LandCoverClass struct {
	ID   int
	Name string
}

// LandCoverClasses is ordered by class id.
var LandCoverClasses = []LandCoverClass{
	{3, "Formação Florestal"},
	{4, "Formação Savânica"},
	{5, "Mangue"},
	{6, "Floresta Alagável"},
	{9, "Silvicultura"},
	{11, "Campo Alagado e Área Pantanosa"},
	{12, "Formação Campestre"},
	{15, "Pastagem"},
	{19, "Lavoura Temporária"},
	{20, "Cana"},
	{21, "Mosaico de Usos"},
	{23, "Praia, Duna e Areal"},
	{24, "Área Urbanizada"},
	{25, "Outras Áreas não Vegetadas"},
	{26, "Corpo D'água"},
	{27, "Não observado"},
	{29, "Afloramento Rochoso"},
	{30, "Mineração"},
	{31, "Aquicultura"},
	{32, "Apicum"},
	{33, "Rio, Lago e Oceano"},
	{35, "Dendê"},
	{36, "Lavoura Perene"},
	{39, "Soja"},
	{40, "Arroz"},
	{41, "Outras Lavouras Temporárias"},
	{46, "Café"},
	{47, "Citrus"},
	{48, "Outras Lavouras Perenes"},
	{49, "Restinga Arbórea"},
	{50, "Restinga Herbácea"},
	{62, "Algodão"},
	{75, "Usina Fotovoltaica (beta)"},
}
