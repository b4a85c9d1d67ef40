package labeler

const responseFormat = `Respond with a single JSON object with these keys:
"fog_score": integer 0-100, where 0 is perfectly clear and 100 is zero visibility,
"fog_level": one of "Clear", "Light Fog", "Moderate Fog", "Heavy Fog", "Very Heavy Fog", "Unknown",
"confidence": number between 0.0 and 1.0,
"reasoning": short explanation of what you observed,
"visibility_estimate": rough visible distance, e.g. "2 miles" or "less than 500 feet",
"weather_conditions": list of short condition tags, e.g. ["overcast", "drizzle"].`

const plainPrompt = `You are analyzing a webcam image for fog conditions.
Assess how much fog is present and how far an observer at the camera could see.
Focus on ground-level visibility: horizon sharpness, how distant objects blur,
and whether landmarks are obscured.

` + responseFormat

const maskedPrompt = `You are analyzing a webcam image for fog conditions.
The upper portion of this image has been deliberately darkened; ignore the
darkened region entirely. Judge fog only from the unmodified lower portion:
ground-level visibility, horizon sharpness, and how distant objects blur.
Do not treat sky or cloud texture as fog.

` + responseFormat
