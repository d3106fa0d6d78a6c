package hop

// Rate is the hop rate in hops per second.
type Rate int

// DefaultRate is the table row used for rates missing from the geometry table.
const DefaultRate Rate = 5

// SamplesPerSymbol is the baseband oversampling factor of the PSK modulator.
const SamplesPerSymbol = 4

// Geometry is the per-hop framing derived from a hop rate.
type Geometry struct {
	// Rate is the table row in effect, which is DefaultRate for unknown rates.
	Rate             Rate
	SymbolsPerFrame  int
	SamplesPerVector int
	HeaderSymbols    int
	SamplesPerSymbol int
}

type geometryRow struct {
	symbols int
	samples int
	header  int
}

// The header split follows the slot_frame head/payload durations at 2400 sym/s.
var geometryTable = map[Rate]geometryRow{
	5:   {symbols: 432, samples: 1920, header: 108},
	10:  {symbols: 216, samples: 960, header: 54},
	20:  {symbols: 108, samples: 480, header: 27},
	50:  {symbols: 40, samples: 192, header: 10},
	100: {symbols: 20, samples: 96, header: 5},
	110: {symbols: 18, samples: 87, header: 6},
}

// Known reports whether r has its own row in the geometry table.
func (r Rate) Known() bool {
	_, ok := geometryTable[r]
	return ok
}

// GeometryFor looks up the frame geometry of r. Unknown rates silently use
// the rate-5 row; callers that must reject them check Known first.
func GeometryFor(r Rate) Geometry {
	row, ok := geometryTable[r]
	eff := r
	if !ok {
		row = geometryTable[DefaultRate]
		eff = DefaultRate
	}
	return Geometry{
		Rate:             eff,
		SymbolsPerFrame:  row.symbols,
		SamplesPerVector: row.samples,
		HeaderSymbols:    row.header,
		SamplesPerSymbol: SamplesPerSymbol,
	}
}

// PayloadSymbols is the number of information symbols following the header.
func (g Geometry) PayloadSymbols() int { return g.SymbolsPerFrame - g.HeaderSymbols }

// Guard is the number of idle samples in each baseband vector.
func (g Geometry) Guard() int {
	guard := g.SamplesPerVector - g.SymbolsPerFrame*g.SamplesPerSymbol
	if guard < 0 {
		return 0
	}
	return guard
}

// Lead is the sample index of the first symbol peak inside a vector.
func (g Geometry) Lead() int { return g.Guard() / 2 }

// HopSamples is the wideband sample count of one hop.
func (g Geometry) HopSamples(interp int) int { return g.SamplesPerVector * interp }

// SyncLength is the sync word length in baseband samples: the lead-in plus
// the header symbols.
func (g Geometry) SyncLength() int { return g.Lead() + g.HeaderSymbols*g.SamplesPerSymbol }
