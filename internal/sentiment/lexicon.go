package sentiment

// defaultValences maps lowercase words to a valence on the -4..4 scale
var defaultValences = map[string]float64{
	// positive
	"amazing":     2.8,
	"appreciate":  2.0,
	"appreciated": 2.0,
	"awesome":     3.1,
	"best":        3.2,
	"better":      1.9,
	"brilliant":   2.8,
	"calm":        1.3,
	"clear":       1.6,
	"comfortable": 1.5,
	"convenient":  1.6,
	"correct":     1.3,
	"delighted":   2.9,
	"easy":        1.9,
	"excellent":   2.7,
	"fantastic":   2.6,
	"fast":        1.2,
	"fine":        0.8,
	"fixed":       1.4,
	"friendly":    2.2,
	"glad":        2.0,
	"good":        1.9,
	"grateful":    2.0,
	"great":       3.1,
	"happy":       2.7,
	"help":        1.7,
	"helped":      1.8,
	"helpful":     1.8,
	"kind":        2.4,
	"like":        1.5,
	"love":        3.2,
	"lovely":      2.8,
	"nice":        1.8,
	"ok":          0.9,
	"okay":        0.9,
	"perfect":     2.7,
	"pleasant":    2.3,
	"pleased":     1.9,
	"polite":      1.6,
	"quick":       1.1,
	"resolved":    1.4,
	"satisfied":   1.8,
	"solved":      1.7,
	"sorted":      1.0,
	"success":     2.7,
	"super":       2.9,
	"thank":       1.5,
	"thanks":      1.9,
	"useful":      1.9,
	"welcome":     2.0,
	"wonderful":   2.7,
	"works":       1.2,
	"yes":         1.7,

	// negative
	"abysmal":       -2.8,
	"angry":         -2.3,
	"annoyed":       -1.6,
	"annoying":      -1.8,
	"awful":         -2.0,
	"bad":           -2.5,
	"broken":        -1.7,
	"cancel":        -1.0,
	"charged":       -0.7,
	"complain":      -1.5,
	"complaint":     -1.5,
	"confused":      -1.3,
	"confusing":     -1.4,
	"damaged":       -1.8,
	"delay":         -1.3,
	"delayed":       -1.3,
	"disappointed":  -1.9,
	"disappointing": -2.2,
	"disgusting":    -2.9,
	"dissatisfied":  -1.9,
	"error":         -1.5,
	"fail":          -2.5,
	"failed":        -2.3,
	"fault":         -1.7,
	"frustrated":    -2.0,
	"frustrating":   -1.9,
	"furious":       -2.7,
	"hate":          -2.7,
	"horrible":      -2.5,
	"impossible":    -1.8,
	"incompetent":   -2.4,
	"issue":         -0.9,
	"lied":          -2.2,
	"lost":          -1.3,
	"mess":          -1.5,
	"mistake":       -1.6,
	"nightmare":     -2.4,
	"overcharged":   -2.1,
	"pathetic":      -2.6,
	"poor":          -2.1,
	"problem":       -1.7,
	"ridiculous":    -1.6,
	"rude":          -2.0,
	"sad":           -2.1,
	"scam":          -2.6,
	"slow":          -1.1,
	"stupid":        -2.4,
	"sucks":         -1.5,
	"terrible":      -2.1,
	"unacceptable":  -2.0,
	"unhappy":       -1.8,
	"unhelpful":     -1.9,
	"upset":         -1.6,
	"useless":       -1.8,
	"waiting":       -0.6,
	"waste":         -1.8,
	"wasted":        -1.9,
	"worse":         -2.1,
	"worst":         -3.1,
	"wrong":         -2.1,
}
