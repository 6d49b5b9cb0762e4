package keyphrase

// stopwords combines common English function words with conversational
// fillers that carry no topic in a support call.
var stopwords = toSet(
	"hello", "hi", "hey", "thanks", "thank", "you", "good", "morning", "afternoon",
	"evening", "the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with",
	"by", "from", "up", "about", "into", "through", "during", "before", "after",
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "your",
	"yours", "yourself", "yourselves", "he", "him", "his", "himself", "she", "her",
	"it", "its", "itself", "they", "them", "their", "theirs", "themselves",
	"what", "which", "who", "whom", "this", "that", "these", "those",
	"am", "is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
	"having", "do", "does", "did", "doing", "a", "an", "will", "would", "could",
	"should", "may", "might", "must", "shall", "can", "okay", "ok", "yes", "no",
	"well", "so", "now", "then", "here", "there", "when", "where", "why", "how",
	"all", "any", "both", "each", "few", "more", "most", "other", "some", "such",
	"only", "own", "same", "than", "too", "very", "just", "not", "if", "as", "get",
	"got", "like", "know", "yeah", "please", "sure", "right", "one", "also", "let",
	"i'm", "it's", "don't", "can't", "i've", "that's", "you're", "we're", "i'll",
	"want", "need", "going", "said", "say", "again", "out", "over", "really",
)

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
