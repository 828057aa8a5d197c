package tasks

import (
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	featureTools             = "tools"
	featureStructuredOutputs = "structured_outputs"
)

func str() jsonschema.Definition { return jsonschema.Definition{Type: jsonschema.String} }

func num() jsonschema.Definition { return jsonschema.Definition{Type: jsonschema.Number} }

func list(items jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Array, Items: &items}
}

func object(props map[string]jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Object, Properties: props}
}

func schema(props map[string]jsonschema.Definition) *jsonschema.Definition {
	def := object(props)
	return &def
}

func defaultCategories() []Category {
	return []Category{
		{
			ID:    "write",
			Title: "Write",
			Actions: []Action{
				{ID: "email", Title: "Email", Template: &Template{
					System:      "You are an expert email composer who writes clear, professional emails.",
					User:        "Write an email based on this context:\n\n{content}",
					Temperature: 0.7,
					Stream:      true,
				}},
				{ID: "blogPost", Title: "Blog Post", Template: &Template{
					System:      "You are a skilled blog writer who creates engaging, well-structured posts.",
					User:        "Create a blog post based on this topic:\n\n{content}",
					Temperature: 0.6,
					Stream:      true,
				}},
				{ID: "article", Title: "Article", Template: &Template{
					System:      "You are an experienced article writer who creates comprehensive, engaging content.",
					User:        "Write an article about:\n\n{content}",
					Temperature: 0.6,
					Stream:      true,
				}},
				{ID: "tweet", Title: "Tweet/Social Post", Template: &Template{
					System:      "You are a social media expert who creates engaging, viral content while respecting context and platform limitations.",
					User:        "Create a tweet or short social media post about:\n\n{content}",
					Temperature: 0.8,
					MaxTokens:   100,
				}},
				{ID: "technical", Title: "Technical Document", Template: &Template{
					System:      "You are a technical writer who creates clear, precise documentation.",
					User:        "Create a technical document about:\n\n{content}",
					Temperature: 0.4,
					Stream:      true,
				}},
				{ID: "academic", Title: "Academic Paper", Features: []string{featureTools, featureStructuredOutputs}, Template: &Template{
					System:      "You are an academic writer who produces scholarly content following academic standards.",
					User:        "Write an academic piece about:\n\n{content}",
					Temperature: 0.3,
					Stream:      true,
					Schema: schema(map[string]jsonschema.Definition{
						"title":    str(),
						"abstract": str(),
						"content":  str(),
						"references": list(object(map[string]jsonschema.Definition{
							"citation": str(),
							"doi":      str(),
						})),
					}),
				}},
			},
		},
		{
			ID:    "analyze",
			Title: "Analyze",
			Actions: []Action{
				{ID: "summarize", Title: "Summarize", Template: &Template{
					System:      "You are an expert content summarizer who extracts key information while maintaining context and nuance.",
					User:        "Please provide a comprehensive summary of:\n\n{content}",
					Temperature: 0.3,
					Stream:      true,
				}},
				{ID: "critique", Title: "Review/Critique", Template: &Template{
					System:      "You are an expert reviewer who provides balanced, constructive criticism.",
					User:        "Please provide a detailed critique of:\n\n{content}",
					Temperature: 0.4,
					Schema: schema(map[string]jsonschema.Definition{
						"summary":     str(),
						"strengths":   list(str()),
						"weaknesses":  list(str()),
						"suggestions": list(str()),
						"rating": object(map[string]jsonschema.Definition{
							"overall": num(),
							"criteria": list(object(map[string]jsonschema.Definition{
								"name":    str(),
								"score":   num(),
								"comment": str(),
							})),
						}),
					}),
				}},
				{ID: "sentiment", Title: "Analyze Sentiment", Template: &Template{
					System:      "You are an expert in sentiment analysis and emotional intelligence.",
					User:        "Analyze the sentiment and emotional tone of:\n\n{content}",
					Temperature: 0.2,
					Schema: schema(map[string]jsonschema.Definition{
						"sentiment": str(),
						"emotions":  list(str()),
						"analysis":  str(),
					}),
				}},
				{ID: "extract", Title: "Extract Key Points", Template: &Template{
					System:      "You are an expert in information extraction and organization.",
					User:        "Please extract and organize key information from:\n\n{content}",
					Temperature: 0.3,
					Schema: schema(map[string]jsonschema.Definition{
						"keyPoints": list(str()),
						"entities": list(object(map[string]jsonschema.Definition{
							"name":    str(),
							"type":    str(),
							"context": str(),
						})),
						"topics": list(str()),
						"timeline": list(object(map[string]jsonschema.Definition{
							"date":  str(),
							"event": str(),
						})),
					}),
				}},
				{ID: "data", Title: "Analyze Data", Features: []string{featureStructuredOutputs}, Template: &Template{
					System:      "You are an expert data analyst who provides clear, actionable insights.",
					User:        "Please analyze this data and provide insights:\n\n{content}",
					Temperature: 0.2,
					Schema: schema(map[string]jsonschema.Definition{
						"summary": str(),
						"keyMetrics": list(object(map[string]jsonschema.Definition{
							"metric":  str(),
							"value":   str(),
							"insight": str(),
						})),
						"trends":          list(str()),
						"recommendations": list(str()),
					}),
				}},
			},
		},
		{
			ID:    "code",
			Title: "Code",
			Actions: []Action{
				{ID: "explain", Title: "Explain Code", Template: &Template{
					System:      "You are an expert programmer who explains code clearly and thoroughly.",
					User:        "Please explain this code in detail:\n\n{content}",
					Temperature: 0.3,
					Schema: schema(map[string]jsonschema.Definition{
						"language":    str(),
						"explanation": str(),
						"keyPoints":   list(str()),
						"suggestions": list(str()),
					}),
				}},
				{ID: "generate", Title: "Generate Code", Template: &Template{
					System:      "You are an expert programmer who writes clean, efficient, and well-documented code.",
					User:        "Please generate code based on this requirement:\n\n{content}",
					Temperature: 0.5,
					Schema: schema(map[string]jsonschema.Definition{
						"code":        str(),
						"language":    str(),
						"explanation": str(),
						"usage":       str(),
					}),
				}},
				{ID: "improve", Title: "Improve Code", Template: &Template{
					System:      "You are an expert programmer who improves code quality, performance, and security.",
					User:        "Please improve this code and explain the improvements:\n\n{content}",
					Temperature: 0.3,
					Schema: schema(map[string]jsonschema.Definition{
						"improvedCode": str(),
						"changes":      list(str()),
						"reasoning":    str(),
					}),
				}},
				{ID: "document", Title: "Document Code"},
				{ID: "test", Title: "Generate Tests", Features: []string{featureTools}, Template: &Template{
					System:      "You are an expert in software testing who writes comprehensive, maintainable tests.",
					User:        "Please generate tests for this code:\n\n{content}",
					Temperature: 0.4,
					Schema: schema(map[string]jsonschema.Definition{
						"testCode":  str(),
						"coverage":  list(str()),
						"testCases": list(str()),
					}),
				}},
			},
		},
		{
			ID:    "translate",
			Title: "Translate",
			Actions: []Action{
				{ID: "toEnglish", Title: "To English"},
				{ID: "fromEnglish", Title: "From English"},
				{ID: "improve", Title: "Improve Translation"},
			},
		},
		{
			ID:    "assist",
			Title: "Assist",
			Actions: []Action{
				{ID: "reply", Title: "Generate Reply", Template: &Template{
					System:      "You are a helpful assistant who generates contextually appropriate replies.",
					User:        "Generate a reply to:\n\n{content}",
					Temperature: 0.7,
					Stream:      true,
				}},
				{ID: "research", Title: "Research Topic", Template: &Template{
					System:      "You are a thorough researcher who provides comprehensive insights and analysis.",
					User:        "Research and provide insights about:\n\n{content}",
					Temperature: 0.3,
					Stream:      true,
				}},
				{ID: "meetings", Title: "Meeting Notes"},
				{ID: "proofread", Title: "Proofread"},
				{ID: "cite", Title: "Add Citations"},
			},
		},
		{
			ID:    "social",
			Title: "Social Media",
			Actions: []Action{
				{ID: "reply", Title: "Reply to Tweet/Post", Template: &Template{
					System:      "You are a social media expert who crafts engaging, appropriate replies that maintain a friendly yet professional tone.",
					User:        "Generate a reply to this post/tweet:\n\n{content}",
					Temperature: 0.7,
					MaxTokens:   280,
				}},
				{ID: "thread", Title: "Create Thread", Template: &Template{
					System:      "You are a social media expert who creates engaging, viral Twitter threads that educate and entertain.",
					User:        "Create a Twitter thread about:\n\n{content}",
					Temperature: 0.7,
					Stream:      true,
				}},
				{ID: "engagement", Title: "Boost Engagement"},
				{ID: "hashtags", Title: "Generate Hashtags"},
			},
		},
	}
}
