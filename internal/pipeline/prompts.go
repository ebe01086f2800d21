package pipeline

import (
	"fmt"
	"strings"

	"github.com/snappy-loop/snippets/internal/agents"
	"github.com/snappy-loop/snippets/internal/models"
)

var (
	bookAgent = agents.Agent{
		Role:      "answer questions",
		Goal:      "You know everything about the selected pdfs.",
		Backstory: "You are a master at understanding pdfs and their content.",
	}
	scriptAgent = agents.Agent{
		Role:      "Podcast Script Generator",
		Goal:      "Generate a conversational podcast script in the Host-Expert format using provided answers.",
		Backstory: "A skilled AI that crafts engaging and structured podcast scripts from scientific explanations.",
	}
	cleanerAgent = agents.Agent{
		Role:      "Script Cleaner",
		Goal:      "Ensure the script is strictly in a Host-Expert conversation format.",
		Backstory: "A meticulous editor that refines scripts to keep them clean and professional.",
	}
)

func answersTask(in Input) agents.Task {
	var b strings.Builder
	fmt.Fprintf(&b, `Provide **detailed, structured explanations** for the following questions:
%s

**Response Guidelines:**
- **Definition & Core Concept**: Start with a clear, concise definition.
- **Step-by-Step Breakdown**: Explain logically.
- **Real-World Applications**: Show how this concept applies in daily life.
- **Key Takeaways**: Summarize insights at the end.`, models.FormatQuestions(in.Questions))

	if len(in.Passages) > 0 {
		fmt.Fprintf(&b, "\n\nBase your answers on these excerpts from the selected books (%s):", strings.Join(in.Books, ", "))
		for i, p := range in.Passages {
			fmt.Fprintf(&b, "\n\n[%d] %s\n%s", i+1, p.Citation(), strings.TrimSpace(p.Text))
		}
	}

	return agents.Task{
		Description:    b.String(),
		ExpectedOutput: "A structured response containing answers for all the given questions.",
	}
}

func scriptTask(in Input) agents.Task {
	p := in.Profile
	return agents.Task{
		Description: fmt.Sprintf(`You are an AI-powered podcast assistant for "Science Snippets," using the answers you have to create a student-friendly science podcast. Your task is to generate a **conversational and engaging podcast script** based on a student's questions and the answers provided.

### **Student Information:**
- **Name:** %s
- **Age:** %d
- **Grade Level:** %s
- **Self-Rating Understanding:** %s (1: No idea, 2: Know a little, 3: Understand some parts, 4: Know a lot)
- **Preferred Explanation Style:** %s (Fun, Detailed, Step-by-Step)
- **Podcast Type:** %s (Deep Dive, Rapid Answers)

### **Student's Questions:**
%s

---

## **Podcast Script Guidelines:**
- **Conversational & Engaging:** Use a lively and enthusiastic tone to keep the student interested.
- **Age-Appropriate Depth:** Tailor explanations based on the **student's age, grade, and self-rated understanding** for clarity and engagement.
- **Match Preferred Explanation Style:**
  - **Step-by-Step:** Break concepts into clear, logical steps.
  - **Fun:** Use exciting analogies, humor, and storytelling elements.
  - **Detailed:** Provide deeper scientific insights with real-world examples.
- **Dynamic Back-and-Forth:** Use a **Host and Expert** format with a natural conversational flow.
- **Seamless Transitions:** If answering multiple questions, connect them smoothly within one continuous episode.
- **No Direct Student Interaction:** The student should be acknowledged at the beginning but should not actively participate in the script.

---

### **Podcast Type Guidelines:**
**Deep Dive (In-Depth Explanations)**
- Provide **detailed, step-by-step** explanation for each question, at least 10 lines each.
- Use **real-world examples, analogies, and historical/scientific references**.
- Offer **follow-up insights** (e.g., "Did you know?" facts).
- Ensure clarity by breaking down complex concepts in an **age-appropriate manner**.

**Rapid Answers (Concise & Direct)**
- Keep answers **short, clear, and to the point**.
- Prioritize **quick explanations** without skipping key facts.
- Use **simple analogies** for faster understanding.

---

Now, generate a high-quality podcast script following this structure, ensuring the dialogue follows the **Host-Expert** format. Do not include things like intro/outro music or sound effects.`,
			p.Name, p.Age, p.Grade, p.SelfRating, p.ExplanationStyle, p.PodcastType,
			models.FormatQuestions(in.Questions)),
		ExpectedOutput: "A podcast script in a natural conversation format.",
	}
}

func refineTask(Input) agents.Task {
	return agents.Task{
		Description: `Ensure the script is strictly in a Host-Expert conversation format, keeping the expert's name within the conversation where appropriate but not as a role indicator.
The left side of the dialogue should only contain 'Host' and 'Expert'.

**Example Output Format:**

Host:Welcome to Science Snippets! Today, we have some amazing questions from Alex, a 6th grader who wants to know all about volcanoes.
Expert:That's right! Hi Alex! Great question. Volcanoes erupt because of pressure buildup deep inside the Earth.
Host:That sounds intense! So, what causes all that pressure in the first place?
Expert:Well, inside the Earth, we have something called magma, which is molten rock. Over time, gases build up, and when the pressure is too high... boom! The volcano erupts.
Host:Wow! So, is every eruption the same?
Expert:Not at all! Some eruptions are explosive, while others are slow and steady. It depends on the type of volcano and the magma inside.
Host:That's fascinating! Thanks for explaining.

**Key Refinements:**
- Keep 'Host' and 'Expert' as role indicators.
- The expert's name can be naturally mentioned within the dialogue, but not as a role indicator.
- Remove any unnecessary sound effects, background cues, or extra role labels.
- Write one dialogue turn per line. Do not use markdown.`,
		ExpectedOutput: "A clean, structured script with only 'Host' and 'Expert' dialogue, ensuring smooth transitions.",
	}
}
